package handlers

import "github.com/gofiber/fiber/v2"

type identity struct {
	UserID string
	Role   string
	Name   string
}

func currentIdentity(c *fiber.Ctx) (identity, bool) {
	userID, ok := c.Locals("user_id").(string)
	if !ok || userID == "" {
		return identity{}, false
	}
	role, _ := c.Locals("role").(string)
	name, _ := c.Locals("name").(string)
	return identity{UserID: userID, Role: role, Name: name}, true
}
