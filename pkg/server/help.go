package server

import (
	"bufio"
	"os"
	"sort"
	"strings"
)

// HelpFile holds parsed entries from a flat help text file.
// Entries are separated by lines starting with "& topicname"; consecutive
// "& topic" lines with no body between them alias the same entry.
type HelpFile struct {
	Entries map[string]string // casefolded topic -> text
}

// LoadHelpFile parses a help .txt file. Returns nil if the file
// cannot be opened, which callers treat as "no help configured".
func LoadHelpFile(path string) *HelpFile {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	hf := &HelpFile{Entries: make(map[string]string)}
	scanner := bufio.NewScanner(f)

	var currentTopics []string
	var buf strings.Builder

	saveEntry := func() {
		if len(currentTopics) == 0 {
			return
		}
		text := strings.TrimRight(buf.String(), "\n ")
		for _, topic := range currentTopics {
			hf.Entries[casefold(topic)] = text
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "& ") {
			topic := strings.TrimSpace(line[2:])
			if buf.Len() == 0 && len(currentTopics) > 0 {
				currentTopics = append(currentTopics, topic)
			} else {
				saveEntry()
				currentTopics = []string{topic}
				buf.Reset()
			}
		} else if len(currentTopics) > 0 {
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}
	saveEntry()

	return hf
}

// Lookup finds a help entry by topic. Exact match first, then the
// shortest prefix match ("help priv" finds "privmsg"). A topic with
// wildcards returns the sorted list of matching topic names instead.
func (hf *HelpFile) Lookup(topic string) string {
	topic = casefold(strings.TrimSpace(topic))
	if topic == "" {
		topic = "index"
	}

	if strings.ContainsAny(topic, "*?") {
		var matches []string
		for key := range hf.Entries {
			if matchMask(topic, key) {
				matches = append(matches, key)
			}
		}
		if len(matches) == 0 {
			return ""
		}
		sort.Strings(matches)
		return "Topics matching '" + topic + "':\n  " + strings.Join(matches, "  ")
	}

	if text, ok := hf.Entries[topic]; ok {
		return text
	}

	var bestKey string
	for key := range hf.Entries {
		if strings.HasPrefix(key, topic) {
			if bestKey == "" || len(key) < len(bestKey) {
				bestKey = key
			}
		}
	}
	if bestKey != "" {
		return hf.Entries[bestKey]
	}
	return ""
}

// helpCmd answers HELP <topic> with the 704/705/706 numeric block,
// or 524 when no entry matches.
func (s *Server) helpCmd(u *User, topic string) {
	if s.help == nil {
		s.numeric(u, "524", "*", "Help is not available on this server")
		return
	}
	if topic == "" {
		topic = "index"
	}
	text := s.help.Lookup(topic)
	if text == "" {
		s.numeric(u, "524", topic, "No help available on this topic")
		return
	}
	lines := strings.Split(text, "\n")
	s.numeric(u, "704", topic, lines[0])
	for _, line := range lines[1:] {
		s.numeric(u, "705", topic, line)
	}
	s.numeric(u, "706", topic, "End of /HELP")
}
