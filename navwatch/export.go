package navwatch

import (
	"fmt"

	"golang.org/x/net/html"

	"github.com/hazyhaar/chatnav/extract"
	"github.com/hazyhaar/chatnav/navigator"
)

// Export renders the navigator's current messages as a Markdown transcript.
func Export(nav *navigator.Navigator) (string, error) {
	msgs, err := nav.Messages()
	if err != nil {
		return "", err
	}
	snap := nav.Snapshot()
	title := fmt.Sprintf("%s conversation", snap.Platform)

	var md string
	nav.Tree().Read(func(root *html.Node) {
		attached := func(n *html.Node) bool {
			if n == nil {
				return false
			}
			for n.Parent != nil {
				n = n.Parent
			}
			return n == root
		}
		md = extract.Transcript(title, msgs, attached)
	})
	return md, nil
}
