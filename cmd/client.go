package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sw33tLie/puzzleimport/internal/utils"
	"github.com/sw33tLie/puzzleimport/pkg/puzzle"
	"github.com/sw33tLie/puzzleimport/pkg/whttp"
)

func newHTTPClient() (*whttp.Client, error) {
	hc, err := whttp.NewClient(whttp.Options{
		Proxy:   viper.GetString("http.proxy"),
		Retries: viper.GetInt("http.retries"),
		RPS:     viper.GetFloat64("http.rps"),
		Timeout: viper.GetDuration("http.timeout"),
		Log:     whttp.LogrusLogger{L: utils.Log},
	})
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	return hc, nil
}

// newAPIClient builds a client for the configured endpoint and, when login
// is set, opens a session with the configured credentials.
func newAPIClient(ctx context.Context, login bool) (*puzzle.Client, error) {
	hc, err := newHTTPClient()
	if err != nil {
		return nil, err
	}
	client := puzzle.NewClient(viper.GetString("puzzle.api"), hc)
	if !login {
		return client, nil
	}

	username := viper.GetString("puzzle.username")
	password := viper.GetString("puzzle.password")
	domain := strings.TrimSpace(viper.GetString("puzzle.domain"))
	var missing []string
	if domain == "" {
		missing = append(missing, "PUZZLE_USER_DOMAIN")
	}
	if username == "" {
		missing = append(missing, "PUZZLE_USERNAME")
	}
	if password == "" {
		missing = append(missing, "PUZZLE_PASSWORD")
	}
	if len(missing) > 0 {
		return nil, withCode(exitUsage, fmt.Errorf("missing credentials: set %s or the puzzle section of the config file", strings.Join(missing, ", ")))
	}

	domainID, err := resolveDomain(ctx, client, domain)
	if err != nil {
		return nil, err
	}
	utils.Log.Debugf("Logging in as %s (domain %d)", username, domainID)
	if err := client.Login(ctx, domainID, username, password); err != nil {
		return nil, withCode(exitRemote, fmt.Errorf("login: %w", err))
	}
	return client, nil
}

// resolveDomain accepts either a numeric domain ID or a domain name.
func resolveDomain(ctx context.Context, client *puzzle.Client, domain string) (int64, error) {
	if id, err := strconv.ParseInt(domain, 10, 64); err == nil {
		return id, nil
	}
	d, err := client.DomainByName(ctx, domain)
	if err != nil {
		var gqlErr *puzzle.GraphQLError
		var statusErr *whttp.StatusError
		if errors.As(err, &gqlErr) || errors.As(err, &statusErr) {
			return 0, withCode(exitRemote, err)
		}
		return 0, withCode(exitUsage, err)
	}
	return d.ID, nil
}

// resolveProject matches a project by ID first, then by title.
func resolveProject(ctx context.Context, client *puzzle.Client, ref string) (puzzle.Project, error) {
	projects, err := client.Projects(ctx, false)
	if err != nil {
		return puzzle.Project{}, withCode(exitRemote, err)
	}
	for _, p := range projects {
		if p.ID == ref {
			return p, nil
		}
	}
	var matches []puzzle.Project
	for _, p := range projects {
		if strings.EqualFold(p.Title, ref) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return puzzle.Project{}, withCode(exitUsage, fmt.Errorf("project %q not found", ref))
	default:
		return puzzle.Project{}, withCode(exitUsage, fmt.Errorf("project title %q is ambiguous, use its ID", ref))
	}
}

// exactArgs is cobra.ExactArgs with a usage exit code.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return withCode(exitUsage, cobra.ExactArgs(n)(cmd, args))
	}
}
