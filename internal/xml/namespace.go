// Package xml builds CalDAV request bodies and parses multistatus replies
// with etree.
package xml

import "github.com/beevik/etree"

// Namespace definitions for CalDAV and WebDAV
const (
	// DAV is the WebDAV namespace
	DAV = "DAV:"
	// CalDAV is the CalDAV namespace
	CalDAV = "urn:ietf:params:xml:ns:caldav"
	// CalendarServer is the Calendar Server namespace (getctag)
	CalendarServer = "http://calendarserver.org/ns/"
	// AppleICal is the namespace of calendar-color
	AppleICal = "http://apple.com/ns/ical/"
)

var prefixes = map[string]string{
	"D":  DAV,
	"C":  CalDAV,
	"CS": CalendarServer,
	"A":  AppleICal,
}

// AddNamespaces declares the standard prefixes on the document root
func AddNamespaces(doc *etree.Document) {
	root := doc.Root()
	if root == nil {
		return
	}
	for _, prefix := range []string{"D", "C", "CS", "A"} {
		root.CreateAttr("xmlns:"+prefix, prefixes[prefix])
	}
}

// qualified returns the prefixed tag for a property name. Unknown names are
// taken to be in DAV:.
func qualified(name string) string {
	switch name {
	case "calendar-data", "calendar-home-set", "supported-calendar-component-set", "calendar-timezone":
		return "C:" + name
	case "getctag":
		return "CS:" + name
	case "calendar-color":
		return "A:" + name
	default:
		return "D:" + name
	}
}
