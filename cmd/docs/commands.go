package docs

import (
	"context"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/query"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/spf13/cobra"
)

var (
	insertCmd = &cobra.Command{
		Use:   "insert [collection] [json]",
		Short: "Inserts a document, a missing _id is generated",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := collection(args[0])
			if err != nil {
				return err
			}
			doc, err := util.ParseDocument(args[1])
			if err != nil {
				return err
			}
			res, err := c.InsertOne(context.Background(), doc)
			if err != nil {
				return err
			}
			fmt.Printf("inserted _id=%s\n", res.InsertedID)
			return nil
		},
	}
	findCmd = &cobra.Command{
		Use:   "find [collection] [filter]",
		Short: "Prints all documents matching the filter (all documents if omitted)",
		Long: `Prints all documents matching the filter. The filter is a JSON object, every
field is either compared by equality or, in the form {"$regex": "...",
"$options": "i"}, matched against a regular expression.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, filter, err := collectionAndFilter(args)
			if err != nil {
				return err
			}
			cur, err := c.Find(context.Background(), filter)
			if err != nil {
				return err
			}
			for _, d := range cur.All() {
				fmt.Println(util.FormatDocument(d))
			}
			fmt.Printf("%d document(s)\n", cur.Len())
			return nil
		},
	}
	findOneCmd = &cobra.Command{
		Use:   "find-one [collection] [filter]",
		Short: "Prints the first document matching the filter",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, filter, err := collectionAndFilter(args)
			if err != nil {
				return err
			}
			d, ok, err := c.FindOne(context.Background(), filter)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("no document found")
				return nil
			}
			fmt.Println(util.FormatDocument(d))
			return nil
		},
	}
	countCmd = &cobra.Command{
		Use:   "count [collection] [filter]",
		Short: "Counts the documents matching the filter",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, filter, err := collectionAndFilter(args)
			if err != nil {
				return err
			}
			n, err := c.CountDocuments(context.Background(), filter)
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
	updateCmd = &cobra.Command{
		Use:   "update [collection] [id] [update]",
		Short: `Merges fields into a document, e.g. update leads 42 '{"$set": {"status": "won"}}'`,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := collection(args[0])
			if err != nil {
				return err
			}
			spec, err := util.ParseDocument(args[2])
			if err != nil {
				return err
			}
			update, err := store.ParseUpdate(spec)
			if err != nil {
				return err
			}
			res, err := c.UpdateOne(context.Background(), query.ByID(args[1]), update)
			if err != nil {
				return err
			}
			fmt.Printf("matched=%d, modified=%d\n", res.MatchedCount, res.ModifiedCount)
			return nil
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [collection] [id]",
		Short: "Deletes a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := collection(args[0])
			if err != nil {
				return err
			}
			res, err := c.DeleteOne(context.Background(), query.ByID(args[1]))
			if err != nil {
				return err
			}
			fmt.Printf("deleted=%d\n", res.DeletedCount)
			return nil
		},
	}
	collectionsCmd = &cobra.Command{
		Use:   "collections",
		Short: "Lists the collections of the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := rpcStore.CollectionNames(context.Background())
			if err != nil {
				return err
			}
			fmt.Println(strings.Join(names, "\n"))
			return nil
		},
	}
)

// collectionAndFilter resolves [collection] [filter] arguments
func collectionAndFilter(args []string) (store.ICollection, query.Filter, error) {
	c, err := collection(args[0])
	if err != nil {
		return nil, nil, err
	}
	if len(args) < 2 {
		return c, nil, nil
	}
	spec, err := util.ParseDocument(args[1])
	if err != nil {
		return nil, nil, err
	}
	filter, err := query.Parse(spec)
	if err != nil {
		return nil, nil, err
	}
	return c, filter, nil
}
