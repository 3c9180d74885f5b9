package dav

import "encoding/xml"

// Multistatus is the PROPFIND response body. The shape is deliberately
// conservative: older Windows WebDAV clients reject anything fancier.
type Multistatus struct {
	XMLName   xml.Name   `xml:"D:multistatus"`
	XMLNS     string     `xml:"xmlns:D,attr"`
	Responses []Response `xml:"D:response"`
}

type Response struct {
	Href     string   `xml:"D:href"`
	Propstat Propstat `xml:"D:propstat"`
}

type Propstat struct {
	Prop   Prop   `xml:"D:prop"`
	Status string `xml:"D:status"`
}

type Prop struct {
	DisplayName     string        `xml:"D:displayname"`
	ResourceType    *ResourceType `xml:"D:resourcetype,omitempty"`
	ContentLength   *int64        `xml:"D:getcontentlength,omitempty"`
	ContentType     string        `xml:"D:getcontenttype,omitempty"`
	ETag            string        `xml:"D:getetag,omitempty"`
	CreationDate    string        `xml:"D:creationdate"`
	GetLastModified string        `xml:"D:getlastmodified"`
}

// ResourceType marks collections; files carry an empty resourcetype.
type ResourceType struct {
	Collection *struct{} `xml:"D:collection,omitempty"`
}

func newMultistatus(responses []Response) Multistatus {
	return Multistatus{XMLNS: "DAV:", Responses: responses}
}
