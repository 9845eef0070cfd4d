// Command chainstreamctl is the operator-facing companion to chainstreamd:
// it inspects a persisted ring snapshot, drives a reorg against an
// authoritative block source, and tails a rotated log file.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/chainstream/core/chain"
)

func main() {
	app := &cli.App{
		Name:  "chainstreamctl",
		Usage: "inspect and operate a chainstream ring",
		Commands: []*cli.Command{
			inspectCommand,
			forceReorgCommand,
			tailLogsCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var ringSizeFlag = &cli.IntFlag{
	Name:  "ring-size",
	Usage: "max_size of the ring the snapshot was taken from",
	Value: 128,
}

var inspectCommand = &cli.Command{
	Name:      "inspect",
	Usage:     "print the head, tail, and size of a ring snapshot",
	ArgsUsage: "<snapshot.json>",
	Flags:     []cli.Flag{ringSizeFlag},
	Action: func(c *cli.Context) error {
		r, err := loadRing(c.Args().First(), c.Int("ring-size"))
		if err != nil {
			return err
		}
		head, hasHead := r.Head()
		tail, hasTail := r.Tail()
		fmt.Printf("size=%d\n", r.Size())
		if hasHead {
			fmt.Printf("head: height=%d hash=%s\n", head.Height, head.Hash)
		}
		if hasTail {
			fmt.Printf("tail: height=%d hash=%s\n", tail.Height, tail.Hash)
		}
		return nil
	},
}

var providerURLFlag = &cli.StringFlag{
	Name:     "provider-url",
	Usage:    "base URL returning JSON chain.Block at <provider-url>/<height>",
	Required: true,
}

var forceReorgCommand = &cli.Command{
	Name:      "force-reorg",
	Usage:     "walk the ring back to the height it last agrees with the authoritative source, then rewrite the snapshot",
	ArgsUsage: "<snapshot.json>",
	Flags:     []cli.Flag{ringSizeFlag, providerURLFlag},
	Action: func(c *cli.Context) error {
		path := c.Args().First()
		r, err := loadRing(path, c.Int("ring-size"))
		if err != nil {
			return err
		}
		provider := &httpBlockProvider{baseURL: c.String("provider-url"), client: &http.Client{Timeout: 5 * time.Second}}
		diverged, err := chain.Reorganize(c.Context, r, provider)
		if err != nil {
			return fmt.Errorf("force-reorg: %w", err)
		}
		for _, b := range diverged {
			fmt.Printf("diverged: height=%d hash=%s\n", b.Height, b.Hash)
		}
		return saveRing(path, r)
	},
}

var tailLogsCommand = &cli.Command{
	Name:      "tail-logs",
	Usage:     "print new lines appended to a log file as they arrive",
	ArgsUsage: "<log-file>",
	Action: func(c *cli.Context) error {
		return tailFile(c.Context, c.Args().First())
	},
}

func loadRing(path string, size int) (*chain.Ring, error) {
	if path == "" {
		return nil, fmt.Errorf("chainstreamctl: snapshot path required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("chainstreamctl: read snapshot: %w", err)
	}
	var blocks []chain.Block
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, fmt.Errorf("chainstreamctl: parse snapshot: %w", err)
	}
	r := chain.NewRing(size, filepath.Base(path))
	r.FromArray(blocks)
	return r, nil
}

func saveRing(path string, r *chain.Ring) error {
	data, err := json.MarshalIndent(r.ToArray(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// httpBlockProvider implements chain.BlockProvider by GETting
// <baseURL>/<height> and decoding the JSON body as a chain.Block.
type httpBlockProvider struct {
	baseURL string
	client  *http.Client
}

func (p *httpBlockProvider) BlockByHeight(ctx context.Context, height uint64) (chain.Block, error) {
	url := fmt.Sprintf("%s/%d", p.baseURL, height)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return chain.Block{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return chain.Block{}, err
	}
	defer resp.Body.Close()
	var b chain.Block
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		return chain.Block{}, fmt.Errorf("chainstreamctl: decode block at height %d: %w", height, err)
	}
	return b, nil
}

// tailFile prints lines appended to path, polling for growth, until ctx is
// cancelled. Kept deliberately simple: no inotify dependency, matching the
// "a thin cmd demonstrates assembly" scope from the package layout.
func tailFile(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("chainstreamctl: log file path required")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	reader := bufio.NewReader(f)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				line, err := reader.ReadString('\n')
				if len(line) > 0 {
					fmt.Print(line)
				}
				if err != nil {
					break
				}
			}
		}
	}
}
