package common

import (
	"log"
	"os"
)

func PanicIfErr(err error) {
	if err != nil {
		panic(err)
	}
}

// Remove deletes a file and logs when it cannot. Used by tests to clean up db files.
func Remove(file string) {
	if err := os.Remove(file); err != nil {
		log.Printf("file could not be removed: %v, err: %v \n", file, err)
	}
}
