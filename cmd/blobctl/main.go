// Command blobctl runs storage operations directly against the databases of a registry config.
//
// Example usage:
//
//	blobctl -c sfr.yaml -d photos store --content-type image/jpeg cat.jpg
//	blobctl -c sfr.yaml -d photos get 5f0c...e1 -o cat.jpg
//	blobctl -c sfr.yaml -d photos thumbnail --mime image/png --size 120 5f0c...e1
//	blobctl -c sfr.yaml clean
package main

import (
	"log"
	"os"
)

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
