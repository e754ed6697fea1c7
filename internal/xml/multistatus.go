package xml

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Common XML tag names used in CalDAV
const (
	TagMultistatus = "multistatus"
	TagResponse    = "response"
	TagHref        = "href"
	TagPropstat    = "propstat"
	TagProp        = "prop"
	TagStatus      = "status"
	TagError       = "error"
)

// Property is one property element of a propstat
type Property struct {
	Name        string
	Namespace   string
	TextContent string
	Children    []Property
	Attributes  map[string]string
}

// FromElement populates a Property from an etree.Element
func (p *Property) FromElement(elem *etree.Element) {
	p.Name = elem.Tag
	p.Namespace = elem.NamespaceURI()
	p.TextContent = elem.Text()
	p.Children = nil
	p.Attributes = make(map[string]string, len(elem.Attr))

	for _, attr := range elem.Attr {
		p.Attributes[attr.Key] = attr.Value
	}
	for _, child := range elem.ChildElements() {
		var childProp Property
		childProp.FromElement(child)
		p.Children = append(p.Children, childProp)
	}
}

// Child returns the first child with the given local name
func (p Property) Child(name string) (Property, bool) {
	for _, child := range p.Children {
		if child.Name == name {
			return child, true
		}
	}
	return Property{}, false
}

// Error is a DAV:error precondition reported for a response
type Error struct {
	Namespace string
	Tag       string
	Message   string
}

// PropStat represents property status in a response
type PropStat struct {
	Props  []Property
	Status string
}

// Response represents a single response within a multistatus
type Response struct {
	Href      string
	PropStats []PropStat
	Error     *Error
	Status    string
}

// MultistatusResponse represents a multistatus response
type MultistatusResponse struct {
	Responses []Response
}

// Parse parses a multistatus response from an XML document
func (m *MultistatusResponse) Parse(doc *etree.Document) error {
	if doc == nil || doc.Root() == nil {
		return fmt.Errorf("empty document")
	}
	root := doc.Root()
	if root.Tag != TagMultistatus {
		return fmt.Errorf("invalid root tag: %s", root.Tag)
	}

	m.Responses = nil
	for _, respElem := range root.SelectElements(TagResponse) {
		var resp Response
		if href := respElem.SelectElement(TagHref); href != nil {
			resp.Href = strings.TrimSpace(href.Text())
		}
		if status := respElem.SelectElement(TagStatus); status != nil {
			resp.Status = strings.TrimSpace(status.Text())
		}
		if errElem := respElem.SelectElement(TagError); errElem != nil {
			if children := errElem.ChildElements(); len(children) > 0 {
				resp.Error = &Error{
					Tag:       children[0].Tag,
					Namespace: children[0].NamespaceURI(),
					Message:   children[0].Text(),
				}
			}
		}

		for _, propstatElem := range respElem.SelectElements(TagPropstat) {
			var propstat PropStat
			if propElem := propstatElem.SelectElement(TagProp); propElem != nil {
				for _, elem := range propElem.ChildElements() {
					var prop Property
					prop.FromElement(elem)
					propstat.Props = append(propstat.Props, prop)
				}
			}
			if status := propstatElem.SelectElement(TagStatus); status != nil {
				propstat.Status = strings.TrimSpace(status.Text())
			}
			resp.PropStats = append(resp.PropStats, propstat)
		}

		m.Responses = append(m.Responses, resp)
	}
	return nil
}

// Prop returns a property reported with a 2xx status
func (r Response) Prop(name string) (Property, bool) {
	for _, propstat := range r.PropStats {
		if code := StatusCode(propstat.Status); code < 200 || code > 299 {
			continue
		}
		for _, prop := range propstat.Props {
			if prop.Name == name {
				return prop, true
			}
		}
	}
	return Property{}, false
}

// PropText returns the text of a 2xx property, or "" when absent
func (r Response) PropText(name string) string {
	prop, _ := r.Prop(name)
	return strings.TrimSpace(prop.TextContent)
}

// StatusCode extracts the code of an HTTP status line such as
// "HTTP/1.1 200 OK". A missing status counts as 200.
func StatusCode(status string) int {
	if status == "" {
		return 200
	}
	fields := strings.Fields(status)
	if len(fields) < 2 {
		return 0
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0
	}
	return code
}
