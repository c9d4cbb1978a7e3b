package instrument

import "regexp"

var (
	stackLocation = regexp.MustCompile(`at \S+:\d+:\d+`)
	goFrame       = regexp.MustCompile(`\S+\.go:\d+`)
	unixHome      = regexp.MustCompile(`/(?:Users|home)/[^/\s]+`)
	windowsHome   = regexp.MustCompile(`(?i)[A-Z]:\\Users\\[^\\\s]+`)
	opaqueToken   = regexp.MustCompile(`[A-Za-z0-9_-]{32,}`)
)

// ScrubMessage removes home directories, long opaque tokens and source
// locations from an error message or stack trace.
func ScrubMessage(msg string) string {
	msg = stackLocation.ReplaceAllString(msg, "at <location>")
	msg = goFrame.ReplaceAllString(msg, "<location>")
	msg = windowsHome.ReplaceAllString(msg, "~")
	msg = unixHome.ReplaceAllString(msg, "~")
	return opaqueToken.ReplaceAllString(msg, Redacted)
}
