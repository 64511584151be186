package assets

import "embed"

//go:embed messages.yaml
var MessagesFS embed.FS

// MessagesFile is the coaching message catalogue bundled with the binary.
const MessagesFile = "messages.yaml"

// Messages returns the raw bundled catalogue.
func Messages() ([]byte, error) {
	return MessagesFS.ReadFile(MessagesFile)
}
