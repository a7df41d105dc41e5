package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	ga "github.com/gridpicks/gridauth"
)

func newAccountsCmd() *cobra.Command {
	accountsCmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect accounts",
		RunE:  runAccountsList, // default subcommand
	}
	accountsCmd.PersistentFlags().Int("limit", 50, "maximum number of accounts to list (0 for all)")
	accountsCmd.PersistentFlags().Bool("json", false, "print accounts as JSON")
	accountsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List accounts, oldest first",
		Args:  cobra.NoArgs,
		RunE:  runAccountsList,
	})
	accountsCmd.AddCommand(&cobra.Command{
		Use:   "show <email>",
		Short: "Show one account by email",
		Args:  cobra.ExactArgs(1),
		RunE:  runAccountsShow,
	})
	return accountsCmd
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd.Context(), storeOptionsFromFlags(cmd))
	if err != nil {
		return err
	}
	defer store.Close()

	lister, ok := store.Accounts.(ga.AccountLister)
	if !ok {
		return errors.New("this store cannot list accounts")
	}
	limit, _ := cmd.Flags().GetInt("limit")
	accounts, err := lister.ListAccounts(limit)
	if err != nil {
		return err
	}
	return printAccounts(cmd, accounts)
}

func runAccountsShow(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd.Context(), storeOptionsFromFlags(cmd))
	if err != nil {
		return err
	}
	defer store.Close()

	account, err := store.Accounts.FindByEmail(args[0])
	if err != nil {
		return err
	}
	return printAccounts(cmd, []*ga.Account{account})
}

func printAccounts(cmd *cobra.Command, accounts []*ga.Account) error {
	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		public := make([]*ga.Account, 0, len(accounts))
		for _, a := range accounts {
			public = append(public, a.Public())
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(public)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tNAME\tSIGN-IN\tTEAM\tCREATED")
	for _, a := range accounts {
		signIn := "password"
		switch {
		case a.IsFederated() && a.HasPassword():
			signIn = "password+" + a.FederatedKey.Provider
		case a.IsFederated():
			signIn = a.FederatedKey.Provider
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.Email, a.Name(), signIn, a.FavoriteTeam, a.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}
