package realtime

import "strings"

const (
	changeSubjectPrefix    = "realtime.changes"
	broadcastSubjectPrefix = "realtime.broadcast"
)

// partitionColumns appends a row key to a table's change subjects so the
// broker, not every subscriber, drops events for other keys.
var partitionColumns = map[string]string{
	"messages": "match_id",
}

var subjectTokenReplacer = strings.NewReplacer(
	".", "_", " ", "_", "*", "_", ">", "_",
	"?", "_", "[", "_", "]", "_", `\`, "_",
)

func subjectToken(value string) string {
	if value == "" {
		return "_"
	}
	return subjectTokenReplacer.Replace(value)
}

// changeSubject is realtime.changes.<table>.<TYPE>, followed by the
// partition key for partitioned tables.
func changeSubject(event ChangeEvent) string {
	subject := changeSubjectPrefix + "." + subjectToken(event.Table) + "." + string(event.Type)

	column, ok := partitionColumns[event.Table]
	if !ok {
		return subject
	}
	value, _ := event.columnValue(column)
	return subject + "." + subjectToken(value)
}

// changeSubscribeSubject is the NATS subject (or Redis glob) a filter
// listens on. Column filters are still applied after decoding, since
// tokens are escaped and may collide.
func changeSubscribeSubject(filter Filter) string {
	event := string(filter.Event)
	if filter.Event == EventAll {
		event = "*"
	}
	subject := changeSubjectPrefix + "." + subjectToken(filter.Table) + "." + event

	column, ok := partitionColumns[filter.Table]
	if !ok {
		return subject
	}
	if filter.Column == column {
		return subject + "." + subjectToken(filter.Value)
	}
	return subject + ".*"
}

func changeStreamSubjects() []string {
	return []string{changeSubjectPrefix + ".>"}
}

func broadcastSubject(channel, event string) string {
	return broadcastSubjectPrefix + "." + subjectToken(channel) + "." + subjectToken(event)
}
