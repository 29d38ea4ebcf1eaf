// Package puzzle talks to the Puzzle project-management GraphQL API.
package puzzle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/sw33tLie/puzzleimport/pkg/whttp"
)

const DefaultAPI = "https://puzzle.mrpost.ru/api/graphql"

var (
	ErrLoginFailed    = errors.New("login failed")
	ErrInvalidPayload = errors.New("unexpected response payload")
)

// GraphQLError carries the messages of a response's errors array.
type GraphQLError struct {
	Operation string
	Messages  []string
}

func (e *GraphQLError) Error() string {
	return fmt.Sprintf("%s: %s", e.Operation, strings.Join(e.Messages, "; "))
}

type Domain struct {
	ID   int64
	Name string
}

type Project struct {
	ID     string
	Title  string
	DoneAt string
}

// Active reports whether the project is still open.
func (p Project) Active() bool { return p.DoneAt == "" }

// Client is a session-bound API client. Log in before calling anything
// but Domains.
type Client struct {
	api  string
	http *whttp.Client
}

func NewClient(api string, hc *whttp.Client) *Client {
	if api == "" {
		api = DefaultAPI
	}
	return &Client{api: api, http: hc}
}

type gqlRequest struct {
	OperationName string                 `json:"operationName,omitempty"`
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
}

func (c *Client) do(ctx context.Context, op, query string, vars map[string]interface{}) (gjson.Result, error) {
	body, err := json.Marshal(gqlRequest{OperationName: op, Query: query, Variables: vars})
	if err != nil {
		return gjson.Result{}, err
	}
	res, err := c.http.PostJSON(ctx, c.api, body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: %w", op, err)
	}
	return parseResponse(op, res.BodyString)
}

func parseResponse(op, body string) (gjson.Result, error) {
	if !gjson.Valid(body) {
		return gjson.Result{}, fmt.Errorf("%s: %w", op, ErrInvalidPayload)
	}
	doc := gjson.Parse(body)
	if errs := doc.Get("errors"); errs.Exists() && len(errs.Array()) > 0 {
		gerr := &GraphQLError{Operation: op}
		for _, e := range errs.Array() {
			gerr.Messages = append(gerr.Messages, e.Get("message").String())
		}
		return gjson.Result{}, gerr
	}
	return doc.Get("data"), nil
}

// Domains lists the login domains. It needs no session.
func (c *Client) Domains(ctx context.Context) ([]Domain, error) {
	data, err := c.do(ctx, "Domains", domainsQuery, map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	var out []Domain
	for _, d := range data.Get("domains").Array() {
		out = append(out, Domain{ID: d.Get("id").Int(), Name: d.Get("name").String()})
	}
	return out, nil
}

// DomainByName resolves a domain name to its ID.
func (c *Client) DomainByName(ctx context.Context, name string) (Domain, error) {
	domains, err := c.Domains(ctx)
	if err != nil {
		return Domain{}, err
	}
	for _, d := range domains {
		if strings.EqualFold(d.Name, name) {
			return d, nil
		}
	}
	return Domain{}, fmt.Errorf("unknown domain %q", name)
}

// Login opens a session. The session cookie stays in the HTTP client.
func (c *Client) Login(ctx context.Context, domainID int64, username, password string) error {
	data, err := c.do(ctx, "Login", loginMutation, map[string]interface{}{
		"domainId": domainID,
		"username": username,
		"password": password,
	})
	if err != nil {
		return err
	}
	login := data.Get("login")
	if !login.Exists() || login.Type == gjson.Null || login.Type == gjson.False {
		return ErrLoginFailed
	}
	return nil
}

// Projects lists the projects visible to the session. When activeOnly is
// set, finished projects are left out.
func (c *Client) Projects(ctx context.Context, activeOnly bool) ([]Project, error) {
	data, err := c.do(ctx, "Projects", projectsQuery, map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	var out []Project
	for _, p := range data.Get("projects").Array() {
		pr := Project{ID: p.Get("id").String(), Title: p.Get("title").String(), DoneAt: p.Get("doneAt").String()}
		if activeOnly && !pr.Active() {
			continue
		}
		out = append(out, pr)
	}
	return out, nil
}
