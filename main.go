package main

import (
	"fmt"
	"os"
	"os/user"

	"ionbuild/repl"
)

func main() {
	currentUser, err := user.Current()
	if err != nil {
		fmt.Printf("Error getting current user: %v\n", err)
		return
	}

	fmt.Printf("Welcome to the ionbuild REPL, %s!\n", currentUser.Username)
	fmt.Println("Enter assembly lines; a blank line builds the snippet.")
	repl.Start(os.Stdin, os.Stdout)
}
