package main // hashpw prints a bcrypt hash suitable for ADMIN_PASSWORD_HASH

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/iliyamo/document-access-gate/internal/utils"
)

func main() {
	fmt.Fprint(os.Stderr, "admin password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		log.Fatal(err)
	}
	hash, err := utils.HashPassword(strings.TrimRight(line, "\r\n"), 12)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(hash)
}
