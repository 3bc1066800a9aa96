package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/redoraai/redora-cli/config"
	"github.com/redoraai/redora-cli/pkg/leads"
)

var titleCaser = cases.Title(language.English)

// categoryTitle renders a category name for headings ("Discarded").
func categoryTitle(c leads.Category) string {
	return titleCaser.String(c.String())
}

// LeadListOutput is the json/yaml shape of `leads list`.
type LeadListOutput struct {
	Category string         `json:"category" yaml:"category"`
	Filter   leads.Filter   `json:"filter" yaml:"filter"`
	Counts   map[string]int `json:"counts" yaml:"counts"`
	Leads    []leads.Lead   `json:"leads" yaml:"leads"`
}

// ClassifyOutput is the json/yaml shape of `leads classify`.
type ClassifyOutput struct {
	LeadID   string         `json:"lead_id" yaml:"lead_id"`
	Category string         `json:"category" yaml:"category"`
	Selected string         `json:"selected,omitempty" yaml:"selected,omitempty"`
	Counts   map[string]int `json:"counts" yaml:"counts"`
}

func countsByName(s leads.Snapshot) map[string]int {
	out := make(map[string]int, len(leads.Categories))
	for cat, n := range s.Counts() {
		out[cat.String()] = n
	}
	return out
}

func outputLeadList(w io.Writer, format config.OutputFormat, cat leads.Category, s leads.Snapshot) error {
	list := s.List(cat)
	if list == nil {
		list = []leads.Lead{}
	}
	switch format {
	case config.OutputFormatJSON:
		return writeJSON(w, LeadListOutput{Category: cat.String(), Filter: s.Filter, Counts: countsByName(s), Leads: list})
	case config.OutputFormatYAML:
		return writeYAML(w, LeadListOutput{Category: cat.String(), Filter: s.Filter, Counts: countsByName(s), Leads: list})
	default:
		return outputLeadListText(w, cat, s, list)
	}
}

func outputLeadListText(w io.Writer, cat leads.Category, s leads.Snapshot, list []leads.Lead) error {
	fmt.Fprintln(w, countsLine(s, cat))
	fmt.Fprintln(w)

	if len(list) == 0 {
		fmt.Fprintf(w, "No %s leads.\n", cat)
		return nil
	}

	fmt.Fprintf(w, "  %-12s  %5s  %-20s  %s\n", "ID", "SCORE", "SUBREDDIT", "TITLE")
	fmt.Fprintf(w, "  %-12s  %5s  %-20s  %s\n", "--", "-----", "---------", "-----")
	for _, l := range list {
		marker := " "
		if cat == leads.CategoryNew && l.ID == s.Selected {
			marker = ">"
		}
		fmt.Fprintf(w, "%s %-12s  %5d  %-20s  %s\n",
			marker, truncate(l.ID, 12), l.RelevancyScore, truncate(subredditName(l.Subreddit), 20), truncate(l.Title, 60))
	}
	return nil
}

func outputClassifyResult(w io.Writer, format config.OutputFormat, leadID string, dest leads.Category, s leads.Snapshot) error {
	out := ClassifyOutput{LeadID: leadID, Category: dest.String(), Selected: s.Selected, Counts: countsByName(s)}
	switch format {
	case config.OutputFormatJSON:
		return writeJSON(w, out)
	case config.OutputFormatYAML:
		return writeYAML(w, out)
	default:
		fmt.Fprintf(w, "Moved %s to %s.\n", leadID, categoryTitle(dest))
		fmt.Fprintln(w, countsLine(s, dest))
		return nil
	}
}

// countsLine renders "New 3 | Completed 1 | ..." with the current category in brackets.
func countsLine(s leads.Snapshot, current leads.Category) string {
	counts := s.Counts()
	parts := make([]string, 0, len(leads.Categories))
	for _, cat := range leads.Categories {
		part := fmt.Sprintf("%s %d", categoryTitle(cat), counts[cat])
		if cat == current {
			part = "[" + part + "]"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, " | ")
}

// writeLeadDetail prints the selected lead for triage.
func writeLeadDetail(w io.Writer, s leads.Snapshot) {
	l, ok := s.SelectedLead()
	if !ok {
		fmt.Fprintln(w, "No lead selected.")
		return
	}
	fmt.Fprintf(w, "(%d/%d) %s  score %d  %s\n", s.SelectedIndex()+1, len(s.New), l.ID, l.RelevancyScore, subredditName(l.Subreddit))
	fmt.Fprintf(w, "  %s\n", l.Title)
	if l.Author != "" {
		fmt.Fprintf(w, "  by u/%s", l.Author)
		if !l.PostCreatedAt.IsZero() {
			fmt.Fprintf(w, " on %s", l.PostCreatedAt.Format("2006-01-02 15:04"))
		}
		fmt.Fprintln(w)
	}
	if l.URL != "" {
		fmt.Fprintf(w, "  %s\n", l.URL)
	}
}

func subredditName(s string) string {
	if s == "" {
		return "-"
	}
	return "r/" + s
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(v)
}
