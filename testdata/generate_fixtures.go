//go:build ignore

// This program generates the sample archive used in the README and manual testing.
package main

import (
	"fmt"
	"os"

	"github.com/klytics/sheetmerge/internal/formats/xlsx"
	"github.com/klytics/sheetmerge/internal/testutil"
)

func main() {
	if err := generateZip(); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating sample.zip: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Test fixtures generated successfully.")
}

func generateZip() error {
	revenue, err := testutil.BuildWorkbook(
		xlsx.Sheet{
			Name: "Revenue",
			Rows: [][]string{
				{"Region", "Q1", "Q2", "Q3", "Q4", "Owner"},
				{"North America", "1250000", "1340000", "1420000", "1580000", "Dana"},
				{"Europe", "890000", "920000", "980000", "1050000", "Eli"},
				{"Asia Pacific", "650000", "720000", "810000", "890000", "Fai"},
			},
		},
		xlsx.Sheet{
			Name: "Headcount",
			Rows: [][]string{
				{"Department", "Employees", "Open Roles"},
				{"Engineering", "45", "8"},
				{"Sales", "22", "3"},
			},
		},
	)
	if err != nil {
		return err
	}

	staff, err := testutil.BuildWorkbook(xlsx.Sheet{
		Name: "Staff",
		Rows: [][]string{
			{"Employee ID", "Name", "", "Start Date"},
			{"00123", "Dana", "x", "2021-04-01"},
			{"00124", "Eli", "", "2022-09-15"},
		},
	})
	if err != nil {
		return err
	}

	data, err := testutil.BuildZip(
		testutil.File{Name: "finance/revenue.xlsx", Data: revenue},
		testutil.File{Name: "people/staff.xlsx", Data: staff},
		testutil.File{Name: "__MACOSX/people/._staff.xlsx", Data: []byte{0}},
	)
	if err != nil {
		return err
	}
	return os.WriteFile("testdata/sample.zip", data, 0644)
}
