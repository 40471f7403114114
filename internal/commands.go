package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/starford/linkmend/internal/linkservice"
	"github.com/starford/linkmend/internal/mcpserver"
	"github.com/starford/linkmend/internal/models"
	"github.com/starford/linkmend/internal/repair"
)

// ErrBrokenLinksFound is returned by RunScan when failOnBroken is set and
// the workspace has broken links.
var ErrBrokenLinksFound = errors.New("broken links found")

// RepairParams selects what RunRepair does. With Auto set every broken
// link with a single best candidate is repaired; otherwise Document and
// Target name one link.
type RepairParams struct {
	Auto        bool
	DryRun      bool
	Document    string
	Target      string
	Replacement string
}

// oneShot keeps stdout for the report; logs go to stderr unless an option
// says otherwise.
func oneShot(opts []Option) *application {
	return newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
}

// RunScan syncs the index and prints the broken links.
func RunScan(ctx context.Context, failOnBroken bool, opts ...Option) error {
	app := oneShot(opts)
	c, err := newCore(app)
	if err != nil {
		return err
	}
	defer c.Close()

	report, err := c.svc.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if err := printJSON(app, report); err != nil {
		return err
	}
	if failOnBroken && len(report.Broken) > 0 {
		return fmt.Errorf("%d %w", len(report.Broken), ErrBrokenLinksFound)
	}
	return nil
}

type candidatesOutput struct {
	models.CandidateSet
	Selected string `json:"selected,omitempty"`
}

// RunCandidates prints the replacement candidates for one broken path.
func RunCandidates(ctx context.Context, brokenPath string, opts ...Option) error {
	app := oneShot(opts)
	c, err := newCore(app)
	if err != nil {
		return err
	}
	defer c.Close()

	set, err := c.svc.Candidates(ctx, brokenPath)
	if err != nil {
		return fmt.Errorf("candidates: %w", err)
	}
	out := candidatesOutput{CandidateSet: set}
	out.Selected, _ = repair.Select(set)
	return printJSON(app, out)
}

// RunRepair repairs one link or, with p.Auto, every resolvable one.
func RunRepair(ctx context.Context, p RepairParams, opts ...Option) error {
	app := oneShot(opts)
	c, err := newCore(app)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.svc.Scan(ctx); err != nil {
		return fmt.Errorf("repair: scan: %w", err)
	}

	if p.Auto {
		report, err := c.svc.AutoRepair(ctx, p.DryRun)
		if err != nil {
			return fmt.Errorf("repair: %w", err)
		}
		return printJSON(app, report)
	}

	if p.Document == "" || p.Target == "" {
		return fmt.Errorf("repair: document and target are required without --auto")
	}
	if p.DryRun {
		set, err := c.svc.Candidates(ctx, p.Target)
		if err != nil {
			return fmt.Errorf("repair: %w", err)
		}
		out := candidatesOutput{CandidateSet: set, Selected: p.Replacement}
		if out.Selected == "" {
			out.Selected, _ = repair.Select(set)
		}
		return printJSON(app, out)
	}
	out, err := c.svc.Repair(ctx, linkservice.RepairRequest{
		Document:    p.Document,
		Target:      p.Target,
		Replacement: p.Replacement,
	})
	if err != nil {
		return fmt.Errorf("repair: %w", err)
	}
	return printJSON(app, out)
}

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := oneShot(opts)
	c, err := newCore(app)
	if err != nil {
		return err
	}
	defer c.Close()

	if _, err := c.svc.Scan(ctx); err != nil {
		return fmt.Errorf("mcp: initial scan: %w", err)
	}
	return mcpserver.New(c.svc, app.version).ServeStdio()
}

func printJSON(app *application, v any) error {
	enc := json.NewEncoder(app.output)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
