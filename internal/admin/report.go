// Package admin renders read-only reports over the message store for the
// operational CLI. It replaces an embedded admin UI on purpose: inspection
// runs as a separate process against the database file.
package admin

import (
	"context"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/roomcast/roomcast/internal/store"
)

const timeFormat = "2006-01-02 15:04:05"

// RenderRooms writes a table of all rooms.
func RenderRooms(ctx context.Context, w io.Writer, st store.Store) error {
	rooms, err := st.ListRooms(ctx)
	if err != nil {
		return err
	}

	table := newTable(w, []string{"ID", "Name", "Created"})
	for _, room := range rooms {
		table.Append([]string{
			strconv.FormatInt(room.ID, 10),
			room.Name,
			room.CreatedAt.Format(timeFormat),
		})
	}
	table.Render()
	return nil
}

// RenderMessages writes a table of a room's messages, optionally filtered to
// a single sender.
func RenderMessages(ctx context.Context, w io.Writer, st store.Store, roomName, sender string, limit int) error {
	room, err := st.GetRoomByName(ctx, roomName)
	if err != nil {
		return err
	}

	var messages []*store.Message
	if sender != "" {
		messages, err = st.ListMessagesBySender(ctx, room.ID, sender, limit)
	} else {
		messages, err = st.ListMessages(ctx, room.ID, limit, nil)
	}
	if err != nil {
		return err
	}

	table := newTable(w, []string{"ID", "Sender", "Message", "Created"})
	for _, msg := range messages {
		table.Append([]string{
			strconv.FormatInt(msg.ID, 10),
			msg.Sender,
			msg.Body,
			msg.CreatedAt.Format(timeFormat),
		})
	}
	table.Render()
	return nil
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}
