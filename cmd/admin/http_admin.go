package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	raw := fs.Bool("json", false, "print the raw JSON response")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/state"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 || *raw {
		fmt.Println(string(b))
		if resp.StatusCode/100 != 2 {
			os.Exit(1)
		}
		return
	}
	line, err := stateLine(b)
	if err != nil {
		fmt.Println(string(b))
		return
	}
	fmt.Println(line)
}

// stateLine renders /admin/v1/state as one human-readable line.
func stateLine(b []byte) (string, error) {
	var st struct {
		RunID   string `json:"run_id"`
		Tick    uint64 `json:"tick"`
		Metrics struct {
			Pilots    int     `json:"pilots"`
			Observers int     `json:"observers"`
			StepMS    float64 `json:"step_ms"`
			Distance  float64 `json:"distance"`
			Mode      string  `json:"mode"`
			Lane      int     `json:"lane"`
			Depleted  bool    `json:"depleted"`
		} `json:"metrics"`
		Frame struct {
			HUD struct {
				Text struct {
					Altitude  string `json:"altitude"`
					Lattice   string `json:"lattice"`
					Combo     string `json:"combo"`
					Integrity string `json:"integrity"`
				} `json:"text"`
			} `json:"hud"`
		} `json:"frame"`
	}
	if err := json.Unmarshal(b, &st); err != nil {
		return "", err
	}
	m, h := st.Metrics, st.Frame.HUD.Text
	line := fmt.Sprintf("run=%s tick=%s pilots=%d observers=%d step=%.2fms distance=%s mode=%s lane=%d altitude=%s lattice=%s combo=%s integrity=%s",
		st.RunID, humanize.Comma(int64(st.Tick)), m.Pilots, m.Observers, m.StepMS,
		humanize.CommafWithDigits(m.Distance, 1), m.Mode, m.Lane, h.Altitude, h.Lattice, h.Combo, h.Integrity)
	if m.Depleted {
		line += " DEPLETED"
	}
	return line, nil
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/snapshot"
	req, _ := http.NewRequest(http.MethodPost, u, nil)
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
