package puzzle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/tidwall/gjson"

	"github.com/sw33tLie/puzzleimport/pkg/catalog"
	"github.com/sw33tLie/puzzleimport/pkg/whttp"
)

// LoadUpload reads a picture and sniffs its content type.
func LoadUpload(field, path string) (whttp.FormFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return whttp.FormFile{}, err
	}
	return whttp.FormFile{
		Field:       field,
		FileName:    catalog.PictureName(path),
		ContentType: mimetype.Detect(data).String(),
		Data:        data,
	}, nil
}

// doUpload sends a GraphQL multipart request with one file bound to
// varPath, a dotted path into the operation such as
// "variables.input.thumbnail".
func (c *Client) doUpload(ctx context.Context, op, query string, vars map[string]interface{}, varPath, filePath string) (gjson.Result, error) {
	file, err := LoadUpload("0", filePath)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: %w", op, err)
	}
	operations, err := json.Marshal(gqlRequest{OperationName: op, Query: query, Variables: vars})
	if err != nil {
		return gjson.Result{}, err
	}
	fileMap, err := json.Marshal(map[string][]string{file.Field: {varPath}})
	if err != nil {
		return gjson.Result{}, err
	}

	res, err := c.http.PostMultipart(ctx, c.api,
		[]whttp.FormField{
			{Name: "operations", Value: string(operations)},
			{Name: "map", Value: string(fileMap)},
		},
		[]whttp.FormFile{file})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: %w", op, err)
	}
	return parseResponse(op, res.BodyString)
}
