package notion

import (
	"context"
	"strings"
)

const noAnswer = "user did not answer"

func (c *Client) renderPage(ctx context.Context, p page) (string, error) {
	blocks, err := c.children(ctx, p.ID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("# Morning Journaling Entry | Created Time: " + p.CreatedTime + "\n")
	if err := c.renderBlocks(ctx, blocks, &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// renderBlocks pairs each heading_2 question with the paragraph that follows
// it. Column lists are rendered column by column, each with its own pairing.
func (c *Client) renderBlocks(ctx context.Context, blocks []block, b *strings.Builder) error {
	pending := false
	unanswered := func() {
		if pending {
			b.WriteString("UserAnswer: " + noAnswer + "\n")
			pending = false
		}
	}

	for _, blk := range blocks {
		switch blk.Type {
		case "heading_2":
			unanswered()
			b.WriteString("JournalingQuestion: " + plain(blk.Heading2) + "\n")
			pending = true
		case "paragraph":
			if !pending {
				continue
			}
			answer := plain(blk.Paragraph)
			if answer == "" {
				answer = noAnswer
			}
			b.WriteString("UserAnswer: " + answer + "\n")
			pending = false
		case "column_list":
			columns, err := c.children(ctx, blk.ID)
			if err != nil {
				return err
			}
			for _, col := range columns {
				inner, err := c.children(ctx, col.ID)
				if err != nil {
					return err
				}
				if err := c.renderBlocks(ctx, inner, b); err != nil {
					return err
				}
			}
		case "divider":
			unanswered()
			b.WriteString("---\n")
		}
	}
	unanswered()
	return nil
}

func plain(t *textBlock) string {
	if t == nil {
		return ""
	}
	var sb strings.Builder
	for _, rt := range t.RichText {
		if rt.Text.Content != "" {
			sb.WriteString(rt.Text.Content)
		} else {
			sb.WriteString(rt.PlainText)
		}
	}
	return strings.TrimSpace(sb.String())
}
