// Read-only inspection of a broker database: dumps the message log and
// the user store as a table, or serves the HTML viewer with -serve.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"commute-chat/internal"
	"commute-chat/repositories"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
)

func main() {
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	serve := flag.Bool("serve", false, "Serve the HTML viewer instead of dumping once")
	flag.Parse()

	db, err := openDB(config.BadgerFilepath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	if *serve {
		// Viewer mode: no broker running, stats are static
		stats := func() map[string]any {
			return map[string]any{
				"Status": "Viewer Mode (Read-Only)",
				"Time":   time.Now().Format(time.RFC822),
			}
		}
		fmt.Printf("Viewer started at http://localhost:%d/inspect\n", config.DebugPort)
		internal.StartDebugServer(db, config.DebugPort, "/inspect", recordMapper, stats)
		select {}
	}

	if err := dump(db, *prefix); err != nil {
		log.Fatal(err)
	}
}

func dump(db *badger.DB, prefix string) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Kind", "Timestamp", "From", "To", "Detail", "Read"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()

			err := item.Value(func(v []byte) error {
				key := string(item.Key())
				row, err := describe(key, v)
				if err != nil {
					// Keep scanning, one bad row must not stop the dump
					fmt.Printf("Error decoding key %s: %v\n", key, err)
					return nil
				}
				table.Append(row)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	table.Render()
	return nil
}

func describe(key string, value []byte) ([]string, error) {
	switch {
	case repositories.IsMessageKey(key):
		message, err := repositories.DecodeRecord(value)
		if err != nil {
			return nil, err
		}
		return []string{
			key, "MSG",
			message.CreatedAt.Format("15:04:05"),
			message.From, message.To,
			truncate(message.Text, 48),
			fmt.Sprintf("%t", message.Read),
		}, nil

	case repositories.IsUserKey(key):
		user, err := repositories.DecodeUserRecord(value)
		if err != nil {
			return nil, err
		}
		return []string{
			key, "USER",
			user.CreatedAt.Format("15:04:05"),
			user.ID, "-",
			fmt.Sprintf("%s (%d connections)", user.DisplayName(), len(user.Connections)),
			"-",
		}, nil

	default:
		return []string{key, "RAW", "--:--:--", "-", "-",
			fmt.Sprintf("Size: %d bytes", len(value)), "-"}, nil
	}
}

func recordMapper(key string, val []byte) internal.InspectRow {
	row := internal.DefaultMapper(key, val)

	if repositories.IsMessageKey(key) {
		if message, err := repositories.DecodeRecord(val); err == nil {
			row.Detail = truncate(message.Text, 64)
		}
	}
	if repositories.IsUserKey(key) {
		if user, err := repositories.DecodeUserRecord(val); err == nil {
			row.Kind = "USER"
			row.From = user.ID
			row.Detail = user.DisplayName()
		}
	}
	return row
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	db, err := badger.Open(opts)
	if err != nil {
		// A dirty value log needs one writable open to truncate it
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}

			db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
