package services

import "encoding/json"

// Row changes reach live views through pg_notify, which rejects payloads
// of 8000 bytes or more and fails the writing transaction with them.
// Rows are measured with encoding/json, whose string escaping is never
// shorter than jsonb text output; the reserve covers the envelope keys,
// the commit timestamp and jsonb spacing.
const (
	notifyPayloadLimit    = 8000
	notifyEnvelopeReserve = 512
)

func fitsChangeNotification(row any) bool {
	encoded, err := json.Marshal(row)
	if err != nil {
		return false
	}
	return len(encoded)+notifyEnvelopeReserve < notifyPayloadLimit
}
