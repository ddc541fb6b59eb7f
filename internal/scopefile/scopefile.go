// Package scopefile loads a static node set from a text file in lieu of
// discovery, per SPEC_FULL.md §6's scope-file format: one ignored
// header line, then comma-separated records of
// "guid,description,lid,port_number[,remote_description]". It is the
// "trivial logic" static loader §1 names as an out-of-scope
// collaborator; kept deliberately small and dependency-free since no
// library in the retrieved pack parses this bespoke 4-or-5-field,
// mixed hex/decimal format better than a manual split would (a CSV
// reader buys nothing here: the field count varies and the first field
// is hex-or-decimal, which encoding/csv has no opinion about).
package scopefile

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/newellz2/ibtop/internal/fabric"
)

// Load reads a scope file from r and returns the merged node set.
// Malformed lines are skipped; warn, if non-nil, receives one message
// per skipped line.
func Load(r io.Reader, warn func(string)) ([]fabric.Node, error) {
	if warn == nil {
		warn = func(string) {}
	}

	scanner := bufio.NewScanner(r)
	byGUID := make(map[uint64]*fabric.Node)
	order := make([]uint64, 0)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if lineNo == 1 {
			continue // header line, always ignored
		}
		if line == "" {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) != 4 && len(fields) != 5 {
			warn(fmt.Sprintf("scope file line %d: expected 4 or 5 fields, got %d", lineNo, len(fields)))
			continue
		}

		guid, err := parseGUID(strings.TrimSpace(fields[0]))
		if err != nil {
			warn(fmt.Sprintf("scope file line %d: invalid guid %q: %v", lineNo, fields[0], err))
			continue
		}
		description := strings.TrimSpace(fields[1])
		lid, err := strconv.ParseUint(strings.TrimSpace(fields[2]), 10, 16)
		if err != nil {
			warn(fmt.Sprintf("scope file line %d: invalid lid %q: %v", lineNo, fields[2], err))
			continue
		}
		portNumber, err := strconv.ParseUint(strings.TrimSpace(fields[3]), 10, 16)
		if err != nil {
			warn(fmt.Sprintf("scope file line %d: invalid port_number %q: %v", lineNo, fields[3], err))
			continue
		}
		remoteDescription := ""
		if len(fields) == 5 {
			remoteDescription = strings.TrimSpace(fields[4])
		}

		node, ok := byGUID[guid]
		if !ok {
			node = &fabric.Node{GUID: guid, Description: description, LID: uint16(lid), Type: fabric.NodeTypeSwitch}
			byGUID[guid] = node
			order = append(order, guid)
		}
		if _, exists := node.PortByNumber(uint16(portNumber)); !exists {
			node.Ports = append(node.Ports, fabric.Port{
				Number:                uint16(portNumber),
				RemoteNodeDescription: remoteDescription,
			})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read scope file: %w", err)
	}

	nodes := make([]fabric.Node, 0, len(order))
	for _, guid := range order {
		nodes = append(nodes, *byGUID[guid])
	}
	return nodes, nil
}

func parseGUID(s string) (uint64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}
