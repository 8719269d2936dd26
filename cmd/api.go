package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/desertthunder/songdesk/internal/formatter"
	"github.com/desertthunder/songdesk/internal/services"
	"github.com/desertthunder/songdesk/internal/shared"
	"github.com/urfave/cli/v3"
)

// APIGet makes a GET request through the resilient client
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	resp, err := r.apiRequest(ctx, cmd, http.MethodGet, nil)
	if err != nil {
		return err
	}

	if format == formatter.FormatJSON {
		return r.writeResponse(resp, cmd.Bool("pretty"))
	}

	table := formatter.NewTable(cmd.StringArg("path"), resp.Items())
	out, err := formatter.Render(table, format)
	if err != nil {
		return err
	}
	_, err = r.output.Write(out)
	return err
}

// APIPost makes a POST request with a JSON body
func (r *Runner) APIPost(ctx context.Context, cmd *cli.Command) error {
	return r.apiMutation(ctx, cmd, http.MethodPost)
}

// APIPut makes a PUT request with a JSON body
func (r *Runner) APIPut(ctx context.Context, cmd *cli.Command) error {
	return r.apiMutation(ctx, cmd, http.MethodPut)
}

// APIDelete makes a DELETE request
func (r *Runner) APIDelete(ctx context.Context, cmd *cli.Command) error {
	resp, err := r.apiRequest(ctx, cmd, http.MethodDelete, nil)
	if err != nil {
		return err
	}
	return r.writeResponse(resp, cmd.Bool("pretty"))
}

func (r *Runner) apiMutation(ctx context.Context, cmd *cli.Command, method string) error {
	data := cmd.String("data")
	if data == "" {
		return fmt.Errorf("%w: --data flag is required", shared.ErrMissingArgument)
	}
	if err := shared.ValidateJSON([]byte(data)); err != nil {
		return err
	}

	resp, err := r.apiRequest(ctx, cmd, method, []byte(data))
	if err != nil {
		return err
	}
	return r.writeResponse(resp, cmd.Bool("pretty"))
}

func (r *Runner) apiRequest(ctx context.Context, cmd *cli.Command, method string, body []byte) (*services.APIResponse, error) {
	path := cmd.StringArg("path")
	if path == "" {
		return nil, fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}

	s, err := r.open(stackOpts{})
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if _, err := r.requireSession(ctx, s); err != nil {
		return nil, err
	}

	r.logger.Info("request", "method", method, "path", path)
	resp, err := s.client.Do(ctx, method, path, body)
	if err != nil {
		if resp != nil && len(resp.Body) > 0 {
			return nil, fmt.Errorf("%w: %s", err, resp.Body)
		}
		return nil, err
	}
	if resp.Degraded {
		r.logger.Warn("showing empty result", "cause", resp.Cause)
	}
	return resp, nil
}

func (r *Runner) writeResponse(resp *services.APIResponse, pretty bool) error {
	if resp.IsJSON {
		return r.writeJSON(resp.JSONData, pretty)
	}
	if len(resp.Body) == 0 {
		return r.writePlain("✓ %d\n", resp.StatusCode)
	}
	r.output.Write(resp.Body)
	r.output.Write([]byte("\n"))
	return nil
}
