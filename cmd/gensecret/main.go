// Command gensecret prints a random tenant signing secret.
package main

import (
	"fmt"
	"os"

	"github.com/nkiryanov/authcore/internal/service/tokensigner"
)

func main() {
	secret, err := tokensigner.NewSecret()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(secret)
}
