package genclient

import (
	"fmt"
	"strings"
)

var titleTemplates = []struct {
	format string
	score  int
}{
	{"%s - Complete Guide", 95},
	{"How to %s in 2024", 92},
	{"%s: Everything You Need to Know", 89},
	{"The Ultimate %s Tutorial", 87},
	{"%s Tips and Tricks", 85},
	{"Mastering %s: Step by Step", 82},
	{"%s for Beginners", 80},
	{"Advanced %s Techniques", 78},
}

// FallbackTitles returns the static suggestion set for text: eight items,
// ids title_1..title_8, scores non-increasing.
func FallbackTitles(text string) []Suggestion {
	out := make([]Suggestion, len(titleTemplates))
	for i, t := range titleTemplates {
		out[i] = Suggestion{
			ID:    fmt.Sprintf("title_%d", i+1),
			Text:  fmt.Sprintf(t.format, text),
			Score: t.score,
		}
	}
	return out
}

var descriptionTemplates = []string{
	"Discover everything you need to know about %s! In this comprehensive guide, we'll explore the key concepts and provide practical tips to help you succeed.",
	"Looking to learn more about %s? This video covers all the essential information you need, from beginner basics to advanced techniques.",
	"Join us as we dive deep into %s. Whether you're just starting out or looking to expand your knowledge, this video has something for everyone.",
	"Everything you need to know about %s in one place! We'll break down the concepts, share proven strategies, and help you get started today.",
}

// FallbackDescription returns template index (mod 4) for keywords followed
// by a hashtag line.
func FallbackDescription(keywords []string, index int) string {
	kws := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			kws = append(kws, k)
		}
	}
	if index < 0 {
		index = -index
	}
	body := fmt.Sprintf(descriptionTemplates[index%len(descriptionTemplates)], strings.Join(kws, ", "))
	if len(kws) == 0 {
		return body
	}
	return body + "\n\n#" + strings.Join(kws, " #")
}

// SplitKeywords parses the comma-separated keyword input.
func SplitKeywords(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
