package authui

var (
	SplitHostPort = splitHostPort
	BuildMailMsg  = buildMailMsg
)
