package ticket

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/phpdave11/gofpdf"
)

var tableWidths = []float64{14, 60, 16, 20, 26, 44}

// RenderPDF renders the view as a one-page e-ticket
func RenderPDF(v *View) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("E-Ticket "+v.Header.PNR, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "E-TICKET")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, fmt.Sprintf("%s - %s", dash(v.Header.TrainNumber), dash(v.Header.TrainName)))
	pdf.Ln(9)

	pdf.SetFont("Helvetica", "", 11)
	lines := []string{
		fmt.Sprintf("PNR            : %s", v.Header.PNR),
		fmt.Sprintf("Booking status : %s", dash(string(v.Header.BookingStatus))),
		fmt.Sprintf("From           : %s  %s", dash(v.Header.FromStation), v.Header.DepartureTime),
		fmt.Sprintf("To             : %s  %s", dash(v.Header.ToStation), v.Header.ArrivalTime),
		fmt.Sprintf("Journey date   : %s", dash(v.Header.JourneyDate)),
		fmt.Sprintf("Total fare     : %s", v.Header.FareText()),
	}
	for _, s := range lines {
		pdf.Cell(0, 7, s)
		pdf.Ln(7)
	}
	pdf.Ln(5)

	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range []string{"S.No.", "Name", "Age", "Gender", "Status", "Seat"} {
		pdf.CellFormat(tableWidths[i], 8, h, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, r := range v.Passengers {
		cells := []string{
			strconv.Itoa(r.Index),
			r.Name,
			strconv.Itoa(r.Age),
			r.Gender,
			string(r.Status),
			r.Seat,
		}
		for i, c := range cells {
			pdf.CellFormat(tableWidths[i], 7, c, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if v.Header.BookingStatus != "" && !v.Header.Cancellable {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "I", 10)
		pdf.MultiCell(0, 6, "This booking has been cancelled and is not valid for travel.", "", "", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render e-ticket: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename is the download name of a view's e-ticket
func Filename(v *View) string {
	return fmt.Sprintf("ETICKET_%s.pdf", v.Header.PNR)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
