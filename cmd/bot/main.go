package main

import (
	"log"
	_ "time/tzdata"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("macross: %v", err)
	}
}
