package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cyp0633/calevents/internal/xml"
)

type PropfindResponse struct {
	CurrentUserPrincipal string
	CalendarHomeSet      string
	Resources            map[string]ResourceProps
}

type ResourceProps struct {
	IsCalendar  bool
	DisplayName string
	Color       string
	CanWrite    bool
	Etag        string
	CTag        string
	// Components lists supported-calendar-component-set, empty when unreported
	Components []string
}

// SupportsEvents reports whether the collection accepts VEVENTs
func (r ResourceProps) SupportsEvents() bool {
	if len(r.Components) == 0 {
		return true
	}
	for _, c := range r.Components {
		if c == "VEVENT" {
			return true
		}
	}
	return false
}

// DoPROPFIND performs a PROPFIND request
func (w *httpClientWrapper) DoPROPFIND(ctx context.Context, urlStr string, depth int, props ...string) (*PropfindResponse, error) {
	w.logger.Debug("starting PROPFIND request",
		"url", urlStr,
		"depth", depth,
		"properties", props)

	body, err := (&xml.PropfindRequest{Props: props}).ToXML().WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal PROPFIND body: %w", err)
	}

	header := http.Header{}
	header.Set("Depth", strconv.Itoa(depth))
	header.Set("Content-Type", "application/xml; charset=utf-8")

	resp, err := w.do(ctx, "PROPFIND", urlStr, body, header)
	if err != nil {
		return nil, err
	}
	if err := expect(resp, http.StatusMultiStatus); err != nil {
		w.logger.Debug("unexpected response status", "status", resp.Status)
		return nil, err
	}
	defer resp.Body.Close()

	multiStatus, err := readMultistatus(resp.Body)
	if err != nil {
		w.logger.Debug("failed to parse XML response", "error", err)
		return nil, err
	}

	result := &PropfindResponse{Resources: make(map[string]ResourceProps)}
	for _, r := range multiStatus.Responses {
		if href := childHref(r, "current-user-principal"); href != "" {
			result.CurrentUserPrincipal = href
		}
		if href := childHref(r, "calendar-home-set"); href != "" {
			result.CalendarHomeSet = href
		}

		resource := ResourceProps{
			DisplayName: r.PropText("displayname"),
			Color:       r.PropText("calendar-color"),
			Etag:        r.PropText("getetag"),
			CTag:        r.PropText("getctag"),
		}
		if rt, ok := r.Prop("resourcetype"); ok {
			_, resource.IsCalendar = rt.Child("calendar")
		}
		if privs, ok := r.Prop("current-user-privilege-set"); ok {
			resource.CanWrite = canWrite(privs)
		}
		if set, ok := r.Prop("supported-calendar-component-set"); ok {
			for _, comp := range set.Children {
				if name := comp.Attributes["name"]; name != "" {
					resource.Components = append(resource.Components, name)
				}
			}
		}
		result.Resources[r.Href] = resource
	}

	w.logger.Debug("PROPFIND request complete",
		"resources", len(result.Resources),
		"principal_url", result.CurrentUserPrincipal != "",
		"home_set", result.CalendarHomeSet != "")
	return result, nil
}

func childHref(r xml.Response, name string) string {
	prop, ok := r.Prop(name)
	if !ok {
		return ""
	}
	href, _ := prop.Child("href")
	return href.TextContent
}

func canWrite(privs xml.Property) bool {
	for _, priv := range privs.Children {
		for _, p := range priv.Children {
			switch p.Name {
			case "write", "write-content", "write-properties", "all":
				return true
			}
		}
	}
	return false
}
