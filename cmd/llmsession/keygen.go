// Fabstir LLM Session - end-to-end encrypted inference session transport
// Copyright (C) 2026 Fabstir
//
// This file is part of the Fabstir LLM session library.
//
// This library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this library. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fabstir/llm-session-go/pkg/crypto"
	"github.com/fabstir/llm-session-go/pkg/crypto/keys"
)

var keygenJSON bool

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a secp256k1 client identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		kp, err := keys.Generate()
		if err != nil {
			return err
		}
		pub := crypto.BytesToHex(kp.PublicKey())
		addr := kp.Address().Hex()

		if keygenJSON {
			out := map[string]string{
				"public_key": pub,
				"address":    addr,
			}
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, string(data))
			return nil
		}
		fmt.Printf("Public key: %s\n", pub)
		fmt.Printf("Address:    %s\n", addr)
		return nil
	},
}

func init() {
	keygenCmd.Flags().BoolVar(&keygenJSON, "json", false, "emit JSON")
	rootCmd.AddCommand(keygenCmd)
}
