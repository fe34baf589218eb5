package main

import (
	"casetrack-backend/lib/serviceutil"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		serviceutil.Fatal("tracker run failed", err)
	}
}
