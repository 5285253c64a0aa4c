package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papapumpkin/strata/internal/telemetry"
)

var eventsCmd = &cobra.Command{
	Use:   "events [file]",
	Short: "View the JSONL run events written by generate",
	Long: `Reads and formats a JSONL events file. Without an argument, the
events_path setting is used.
With --follow (-f), watches the file for new events (like tail -f).
With --run, shows only the events of one run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().BoolP("follow", "f", false, "follow the file for new events")
	eventsCmd.Flags().String("run", "", "only show events of this run")
	rootCmd.AddCommand(eventsCmd)
}

func runEvents(cmd *cobra.Command, args []string) error {
	follow, _ := cmd.Flags().GetBool("follow")
	runID, _ := cmd.Flags().GetString("run")

	path := viper.GetString("events_path")
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("events: no file given and events_path is not set")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("events: open %s: %w", path, err)
	}
	defer f.Close()

	// Print all existing events.
	w := cmd.OutOrStdout()
	lr := &lineReader{r: bufio.NewReader(f)}
	if err := lr.print(w, runID); err != nil {
		return fmt.Errorf("events: read %s: %w", path, err)
	}

	if !follow {
		return nil
	}

	return tailFollow(w, lr, path, runID)
}

// lineReader yields complete lines, holding back a trailing partial line
// until the writer finishes it.
type lineReader struct {
	r       *bufio.Reader
	partial string
}

// print prints every complete line available.
func (lr *lineReader) print(w io.Writer, runID string) error {
	for {
		chunk, err := lr.r.ReadString('\n')
		if err == io.EOF {
			lr.partial += chunk
			return nil
		}
		if err != nil {
			return err
		}
		line := strings.TrimSpace(lr.partial + chunk)
		lr.partial = ""
		if line != "" {
			printEvent(w, line, runID)
		}
	}
}

// tailFollow watches the file for new data using fsnotify and prints new events.
func tailFollow(w io.Writer, lr *lineReader, path, runID string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("events: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("events: watch %s: %w", path, err)
	}

	for event := range watcher.Events {
		if !event.Has(fsnotify.Write) {
			continue
		}
		if err := lr.print(w, runID); err != nil {
			return err
		}
	}
	return nil
}

// printEvent decodes a JSONL line and prints a human-readable representation.
func printEvent(w io.Writer, line, runID string) {
	var evt telemetry.Event
	if err := json.Unmarshal([]byte(line), &evt); err != nil {
		fmt.Fprintf(w, "??? %s\n", line)
		return
	}
	if runID != "" && evt.RunID != runID {
		return
	}

	ts := evt.Timestamp.Format(time.TimeOnly)
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", ts))
	parts = append(parts, evt.Kind)

	if evt.RunID != "" {
		parts = append(parts, fmt.Sprintf("run=%s", evt.RunID))
	}
	if evt.Config != nil {
		parts = append(parts, fmt.Sprintf("configuration=%d", *evt.Config))
	}
	if evt.Data != nil {
		if m, ok := evt.Data.(map[string]any); ok {
			parts = append(parts, formatDataMap(m))
		} else {
			data, _ := json.Marshal(evt.Data)
			parts = append(parts, string(data))
		}
	}

	fmt.Fprintln(w, strings.Join(parts, " "))
}

// formatDataMap formats a data map as key=value pairs sorted by key.
func formatDataMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%v", k, m[k])
	}
	return b.String()
}
