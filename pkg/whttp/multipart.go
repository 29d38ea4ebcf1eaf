package whttp

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

type FormField struct {
	Name  string
	Value string
}

type FormFile struct {
	Field       string
	FileName    string
	ContentType string
	Data        []byte
}

// PostMultipart sends a multipart/form-data body. Fields are written in
// order, before the files.
func (c *Client) PostMultipart(ctx context.Context, url string, fields []FormField, files []FormFile) (*WHTTPRes, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	for _, f := range fields {
		if err := mw.WriteField(f.Name, f.Value); err != nil {
			return nil, err
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, quoteEscaper.Replace(f.Field), quoteEscaper.Replace(f.FileName)))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	return c.Send(ctx, &WHTTPReq{
		Method: http.MethodPost,
		URL:    url,
		Body:   buf.Bytes(),
		Headers: []WHTTPHeader{
			{Name: "Content-Type", Value: mw.FormDataContentType()},
			{Name: "Accept", Value: "application/json"},
		},
	})
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")
