package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/admissions-sync-api/pkg/config"
	"github.com/noah-isme/admissions-sync-api/pkg/publicapi"
)

// drift is one application whose merged copy disagrees with the remote one.
type drift struct {
	ID     string
	Local  string
	Remote string
}

type report struct {
	Missing []string
	Pending []string
	Drifted []drift
	Matched int
}

func main() {
	var (
		apiBase    string
		remoteBase string
		timeout    time.Duration
	)

	defaultRemote := ""
	if cfg, err := config.Load(); err == nil {
		defaultRemote = cfg.Ingest.PublicAPIURL
	}

	flag.StringVar(&apiBase, "api-base", "http://localhost:8080", "Base URL of this service")
	flag.StringVar(&remoteBase, "remote-base", defaultRemote, "Base URL of the public applications API")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	if strings.TrimSpace(remoteBase) == "" {
		log.Fatal("remote base URL is required (flag -remote-base or PUBLIC_API_URL)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*timeout)
	defer cancel()

	merged, err := publicapi.NewClient(apiBase, timeout, nil).List(ctx)
	if err != nil {
		log.Fatalf("failed to list merged applications: %v", err)
	}
	remote, err := publicapi.NewClient(remoteBase, timeout, nil).List(ctx)
	if err != nil {
		log.Fatalf("failed to list remote applications: %v", err)
	}

	res := compare(merged, remote)
	printReport(res)

	fmt.Printf("Missing: %d, Drifted: %d, Pending locally: %d\n", len(res.Missing), len(res.Drifted), len(res.Pending))
	if len(res.Missing) > 0 {
		os.Exit(1)
	}
}

// compare indexes both lists by id. Remote records absent from the merged
// view are missing; local-only pending records are reported separately.
func compare(merged, remote []map[string]any) report {
	local := make(map[string]map[string]any, len(merged))
	var res report
	for _, item := range merged {
		id := field(item, "id")
		if id == "" {
			continue
		}
		local[id] = item
		if field(item, "syncState") == "pending" {
			res.Pending = append(res.Pending, id)
		}
	}

	for _, item := range remote {
		id := field(item, "id")
		if id == "" {
			continue
		}
		mine, ok := local[id]
		if !ok {
			res.Missing = append(res.Missing, id)
			continue
		}
		if l, r := field(mine, "status"), field(item, "status"); !strings.EqualFold(l, r) {
			res.Drifted = append(res.Drifted, drift{ID: id, Local: l, Remote: r})
			continue
		}
		res.Matched++
	}

	sort.Strings(res.Missing)
	sort.Strings(res.Pending)
	sort.Slice(res.Drifted, func(i, j int) bool { return res.Drifted[i].ID < res.Drifted[j].ID })
	return res
}

func field(item map[string]any, key string) string {
	v, ok := item[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func printReport(res report) {
	fmt.Println("Sync Audit Report")
	fmt.Println("=================")
	fmt.Printf("Matched: %d\n", res.Matched)
	for _, id := range res.Missing {
		fmt.Printf("[MISSING] %s\n", id)
	}
	for _, d := range res.Drifted {
		fmt.Printf("[DRIFT] %s local=%s remote=%s\n", d.ID, d.Local, d.Remote)
	}
	for _, id := range res.Pending {
		fmt.Printf("[PENDING] %s\n", id)
	}
}
