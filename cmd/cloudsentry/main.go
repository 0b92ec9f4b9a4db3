// Command cloudsentry runs the cloud security monitoring demo: a one-shot
// anomaly detection pipeline and the dashboard backend serving its output.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
