// Command inspect opens a boardsync pebble database and dumps keys
// under a prefix, pretty-printing JSON values. Handy for poking at
// board/resource/event namespaces without the server running.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"boardsync/pkg/logger"
	"boardsync/pkg/store"
)

func main() {
	var (
		dbPath = flag.String("db", "./.boards/store", "pebble store path (the server keeps it under <db>/store)")
		prefix = flag.String("prefix", "", "key prefix to scan (e.g. board:, res:, doc:)")
		values = flag.Bool("values", false, "print values as well as keys")
		limit  = flag.Int("limit", 100, "max entries to print")
	)
	flag.Parse()

	logger.Init()
	if err := store.Open(*dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *dbPath, err)
		os.Exit(1)
	}
	defer store.Close()

	keys, err := store.ListKeys(*prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list keys: %v\n", err)
		os.Exit(1)
	}
	for i, k := range keys {
		if i >= *limit {
			fmt.Printf("... (%d more)\n", len(keys)-i)
			break
		}
		if !*values {
			fmt.Println(k)
			continue
		}
		v, err := store.GetKey(k)
		if err != nil {
			fmt.Printf("%s\t<error: %v>\n", k, err)
			continue
		}
		if store.LikelyJSON([]byte(v)) {
			var buf bytes.Buffer
			if json.Indent(&buf, []byte(v), "", "  ") == nil {
				fmt.Printf("%s\n%s\n", k, buf.String())
				continue
			}
		}
		fmt.Printf("%s\t%s\n", k, v)
	}
	fmt.Printf("total: %d keys under %q\n", len(keys), *prefix)
}
