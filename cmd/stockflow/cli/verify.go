package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/odyssey-erp/stockflow/internal/inventory"
)

// LedgerVerifier replays every cell's movement chain.
type LedgerVerifier interface {
	VerifyLedger(ctx context.Context) (int, []inventory.ChainBreak, error)
}

// VerifyOptions defines the flags of the verify-ledger command.
type VerifyOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// VerifySummary is the JSON output of verify-ledger.
type VerifySummary struct {
	OK     bool                   `json:"ok"`
	Cells  int                    `json:"cells"`
	Breaks []inventory.ChainBreak `json:"breaks"`
}

// VerifyCommand checks the movement log against the stored quantities and prints
// the findings. Exit code 10 signals that at least one chain is broken.
func VerifyCommand(ctx context.Context, verifier LedgerVerifier, opts VerifyOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	cells, breaks, err := verifier.VerifyLedger(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "verify-ledger: %v\n", err)
		return 1
	}
	sort.SliceStable(breaks, func(i, j int) bool {
		if breaks[i].WarehouseID != breaks[j].WarehouseID {
			return breaks[i].WarehouseID < breaks[j].WarehouseID
		}
		if breaks[i].ProductID != breaks[j].ProductID {
			return breaks[i].ProductID < breaks[j].ProductID
		}
		return breaks[i].Seq < breaks[j].Seq
	})
	if opts.JSONOutput {
		summary := VerifySummary{OK: len(breaks) == 0, Cells: cells, Breaks: breaks}
		if summary.Breaks == nil {
			summary.Breaks = []inventory.ChainBreak{}
		}
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "verify-ledger: encode json: %v\n", err)
			return 1
		}
	} else {
		renderVerifyHuman(opts.Stdout, cells, breaks)
	}
	if len(breaks) > 0 {
		return 10
	}
	return 0
}

func renderVerifyHuman(out io.Writer, cells int, breaks []inventory.ChainBreak) {
	_, _ = fmt.Fprintf(out, "Checked %d cell(s).\n", cells)
	if len(breaks) == 0 {
		_, _ = fmt.Fprintln(out, "Every movement chain matches its cell quantity.")
		return
	}
	_, _ = fmt.Fprintf(out, "%d break(s) detected:\n", len(breaks))
	for _, b := range breaks {
		_, _ = fmt.Fprintf(out, " - warehouse %d product %d seq %d: %s\n", b.WarehouseID, b.ProductID, b.Seq, b.Problem)
	}
}
