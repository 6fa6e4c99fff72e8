package main

import (
	"flag"
	"log"

	"github.com/PatchLens/go-callseq/callseq"
)

func main() {
	log.SetFlags(log.LstdFlags | log.LUTC)

	reportJsonFile := flag.String("json", "callseq.json", "Run report written by callseq -json")
	reportChartsFile := flag.String("charts", "callseq.png", "File to output run overview chart image")
	flag.Parse()

	report, err := callseq.ReadReport(*reportJsonFile)
	if err != nil {
		log.Fatalf("%sFailed to read report: %v", callseq.ErrorLogPrefix, err)
	}
	if err := callseq.WriteReportCharts(*reportChartsFile, report); err != nil {
		log.Fatalf("%s%v", callseq.ErrorLogPrefix, err)
	}
	log.Println("Report file wrote: " + *reportChartsFile)
}
