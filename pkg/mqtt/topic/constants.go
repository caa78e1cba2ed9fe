package topic

const (
	// Wildcard matches exactly one topic level.
	Wildcard = "+"

	// MultiWildcard matches the remaining levels and must come last.
	MultiWildcard = "#"

	// SharePrefix starts an MQTT v5 shared subscription: $share/{group}/{filter}.
	SharePrefix = "$share"
)
