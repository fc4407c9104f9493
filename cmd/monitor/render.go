package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/zatekoja/clinicqueue/internal/domain/entities"
)

// renderQueue writes one row per entry in serving order
func renderQueue(w io.Writer, entries []*entities.QueueEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROOM\tPOS\tPATIENT\tDOCTOR\tTIME\tSTATUS")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			e.RoomID, e.QueuePosition, e.PatientName, e.DoctorName, e.QueueTime, e.Status.Label())
	}
	if len(entries) == 0 {
		fmt.Fprintln(tw, "-\t-\tno patients queued\t\t\t")
	}
	return tw.Flush()
}
