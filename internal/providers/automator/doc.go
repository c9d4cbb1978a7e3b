// Package automator provides the miniapp.* automation tools.
//
// Tools drive a browser page through playwright. miniapp.launch opens the
// page for a session and stores it as the session's Connection; when a host
// command is configured it is started under a PTY and stored as the
// session's Process. Session teardown closes both.
//
// Tools:
//   - miniapp.launch: Launch the page, optionally open a URL
//   - miniapp.navigate: Navigate to a URL
//   - miniapp.click: Click by selector or cached element ref
//   - miniapp.input: Fill an input by selector or cached element ref
//   - miniapp.screenshot: Save a screenshot to the session output
//   - miniapp.query: Find elements and cache them as refs
//   - miniapp.extract: Read text, attributes or sanitized HTML by CSS or XPath
//   - miniapp.close: Close the page and stop the host
//
// The Snapshotter captures screenshot, HTML and page metadata into a
// failure directory when an instrumented call fails.
package automator
