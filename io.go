package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// readPacket reads a message from path, "-" or empty meaning stdin. Hex input
// may contain whitespace anywhere.
func readPacket(in io.Reader, path string, isHex bool) ([]byte, error) {
	var (
		raw []byte
		err error
	)

	if len(path) == 0 || path == "-" {
		raw, err = io.ReadAll(in)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read packet: %w", err)
	}

	if !isHex {
		return raw, nil
	}

	packet, err := hex.DecodeString(strings.Join(strings.Fields(string(raw)), ""))
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return packet, nil
}

func writePacket(out io.Writer, path string, packet []byte, isHex bool) error {
	data := packet
	if isHex {
		data = []byte(hex.EncodeToString(packet) + "\n")
	}

	if len(path) == 0 || path == "-" {
		_, err := out.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func writeYAML(out io.Writer, v any) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
