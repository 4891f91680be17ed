package controller

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goydb/mrindex/internal/adapter/storage"
	"github.com/goydb/mrindex/pkg/logger"
	"github.com/goydb/mrindex/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	jsOrdersMap    = `function(doc) { if (doc.Fail) { throw new Error("bad order") } return { Region: doc.Region, Amount: doc.Amount } }`
	jsOrdersReduce = `groupBy(x => x.Region).aggregate(g => ({ Region: g.key, Amount: g.values.reduce((s, v) => s + v.Amount, 0) }))`
	jsOrdersCount  = `groupBy(x => x.Region).aggregate(g => ({ Region: g.key, Amount: g.values.length }))`
)

func jsDefinition(name, output string) *model.IndexDefinition {
	return &model.IndexDefinition{
		Name:             name,
		Maps:             []model.MapFunction{{Collection: "Orders", Source: jsOrdersMap}},
		Reduce:           jsOrdersReduce,
		OutputCollection: output,
	}
}

// WithTestManager starts an engine with one database "shop".
func WithTestManager(t *testing.T, fn func(ctx context.Context, m *Manager, db *storage.Database)) {
	WithTestStorage(t, func(ctx context.Context, s *storage.Storage) {
		e := NewEngine(s, EngineConfig{Options: Options{PollInterval: 20 * time.Millisecond}}, logger.Nop())
		require.NoError(t, e.Start(ctx))
		defer e.Stop()

		m, err := e.CreateDatabase(ctx, "shop")
		require.NoError(t, err)
		db, err := e.Database(ctx, "shop")
		require.NoError(t, err)

		fn(ctx, m, db)
	})
}

func waitForNonStale(t *testing.T, ctx context.Context, m *Manager, name string) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, m.WaitForNonStale(ctx, name))
}

func managerResults(t *testing.T, ctx context.Context, m *Manager, name string) map[string]map[string]interface{} {
	res := make(map[string]map[string]interface{})
	err := m.Results(ctx, name, func(key []byte, doc map[string]interface{}) error {
		res[fmt.Sprint(doc["Region"])] = doc
		return nil
	})
	require.NoError(t, err)
	return res
}

func TestManager_Scenario(t *testing.T) {
	WithTestManager(t, func(ctx context.Context, m *Manager, db *storage.Database) {
		def, err := m.PutDefinition(ctx, jsDefinition("totals", "Totals"))
		require.NoError(t, err)
		assert.Equal(t, []model.GroupByField{{Name: "Region"}}, def.GroupBy)
		assert.Equal(t, model.LanguageJavaScript, def.Language)

		putOrder(t, db, "o1", "A", 10)
		putOrder(t, db, "o2", "A", 20)
		putOrder(t, db, "o3", "B", 5)
		waitForNonStale(t, ctx, m, "totals")

		res := managerResults(t, ctx, m, "totals")
		require.Len(t, res, 2)
		assert.EqualValues(t, 30, res["A"]["Amount"])
		assert.EqualValues(t, 5, res["B"]["Amount"])

		out, err := db.GetDocument(ctx, "Totals", OutputDocumentID(mustKey(t, ctx, m, "totals", "A")))
		require.NoError(t, err)
		assert.EqualValues(t, 30, out.Data["Amount"])

		stats, err := m.IndexStats(ctx, "totals")
		require.NoError(t, err)
		assert.EqualValues(t, 3, stats.MapEntries)
		assert.EqualValues(t, 2, stats.Results)

		e1, err := m.Etag(ctx, "totals")
		require.NoError(t, err)

		putOrder(t, db, "o4", "B", 1)
		waitForNonStale(t, ctx, m, "totals")

		e2, err := m.Etag(ctx, "totals")
		require.NoError(t, err)
		assert.NotEqual(t, e1, e2)
		assert.EqualValues(t, 6, managerResults(t, ctx, m, "totals")["B"]["Amount"])

		// putting the same definition again changes nothing
		again, err := m.PutDefinition(ctx, jsDefinition("totals", "Totals"))
		require.NoError(t, err)
		assert.Equal(t, "totals", again.Name)
		defs, err := m.Definitions(ctx)
		require.NoError(t, err)
		assert.Len(t, defs, 1)
	})
}

func mustKey(t *testing.T, ctx context.Context, m *Manager, name, region string) []byte {
	var found []byte
	err := m.Results(ctx, name, func(key []byte, doc map[string]interface{}) error {
		if doc["Region"] == region {
			found = append([]byte(nil), key...)
		}
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, found)
	return found
}

func TestManager_PutDefinition_Rejected(t *testing.T) {
	WithTestManager(t, func(ctx context.Context, m *Manager, db *storage.Database) {
		_, err := m.PutDefinition(ctx, jsDefinition("totals", "Totals"))
		require.NoError(t, err)

		tests := []struct {
			name  string
			def   *model.IndexDefinition
			check func(t *testing.T, err error)
		}{
			{
				name: "self loop",
				def:  jsDefinition("loop", "Orders"),
				check: func(t *testing.T, err error) {
					var e *model.SelfLoopError
					assert.ErrorAs(t, err, &e)
				},
			},
			{
				name: "cycle",
				def: &model.IndexDefinition{
					Name:             "back",
					Maps:             []model.MapFunction{{Collection: "Totals", Source: jsOrdersMap}},
					Reduce:           jsOrdersReduce,
					OutputCollection: "Orders",
				},
				check: func(t *testing.T, err error) {
					var e *model.CycleError
					assert.ErrorAs(t, err, &e)
				},
			},
			{
				name: "duplicate output collection",
				def:  &model.IndexDefinition{Name: "other", Maps: []model.MapFunction{{Collection: "Invoices", Source: jsOrdersMap}}, Reduce: jsOrdersReduce, OutputCollection: "Totals"},
				check: func(t *testing.T, err error) {
					var e *model.DuplicateOutputError
					assert.ErrorAs(t, err, &e)
				},
			},
			{
				name: "unknown language",
				def: func() *model.IndexDefinition {
					d := jsDefinition("cobol", "")
					d.Language = "cobol"
					return d
				}(),
				check: func(t *testing.T, err error) {
					var e *model.InvalidDefinitionError
					require.ErrorAs(t, err, &e)
					assert.Contains(t, e.Reason, "cobol")
				},
			},
			{
				name: "no key selector",
				def: func() *model.IndexDefinition {
					d := jsDefinition("plain", "")
					d.Reduce = `function(g) { return g }`
					return d
				}(),
				check: func(t *testing.T, err error) {
					var e *model.InvalidDefinitionError
					assert.ErrorAs(t, err, &e)
				},
			},
			{
				name: "no reduce",
				def: func() *model.IndexDefinition {
					d := jsDefinition("maponly", "")
					d.Reduce = ""
					return d
				}(),
				check: func(t *testing.T, err error) {
					var e *model.InvalidDefinitionError
					assert.ErrorAs(t, err, &e)
				},
			},
			{
				name: "syntax error",
				def: func() *model.IndexDefinition {
					d := jsDefinition("broken", "")
					d.Maps[0].Source = `function(doc) { return {`
					return d
				}(),
				check: func(t *testing.T, err error) {
					var e *model.InvalidDefinitionError
					assert.ErrorAs(t, err, &e)
				},
			},
			{
				name: "reserved prefix",
				def:  jsDefinition(model.ReplacementPrefix+"totals", ""),
				check: func(t *testing.T, err error) {
					var e *model.InvalidDefinitionError
					assert.ErrorAs(t, err, &e)
				},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := m.PutDefinition(ctx, tt.def)
				require.Error(t, err)
				tt.check(t, err)

				_, err = m.Definition(ctx, tt.def.Name)
				assert.ErrorIs(t, err, model.ErrIndexNotFound)
			})
		}
	})
}

func TestManager_ValidateOutputCollection(t *testing.T) {
	WithTestManager(t, func(ctx context.Context, m *Manager, db *storage.Database) {
		_, err := m.PutDefinition(ctx, jsDefinition("totals", "Totals"))
		require.NoError(t, err)

		back := jsDefinition("back", "Orders")
		back.Maps[0].Collection = "Totals"
		var e *model.CycleError
		assert.ErrorAs(t, m.ValidateOutputCollection(ctx, back), &e)

		ok := jsDefinition("invoices", "Summary")
		ok.Maps[0].Collection = "Invoices"
		assert.NoError(t, m.ValidateOutputCollection(ctx, ok))

		// validation doesn't store the definition
		_, err = m.Definition(ctx, "invoices")
		assert.ErrorIs(t, err, model.ErrIndexNotFound)
	})
}

func TestManager_SideBySide(t *testing.T) {
	WithTestManager(t, func(ctx context.Context, m *Manager, db *storage.Database) {
		_, err := m.PutDefinition(ctx, jsDefinition("totals", "Totals"))
		require.NoError(t, err)

		putOrder(t, db, "o1", "A", 10)
		putOrder(t, db, "o2", "A", 20)
		waitForNonStale(t, ctx, m, "totals")

		changed := jsDefinition("totals", "Totals")
		changed.Reduce = jsOrdersCount
		pending, err := m.PutDefinition(ctx, changed)
		require.NoError(t, err)
		assert.Equal(t, model.ReplacementPrefix+"totals", pending.Name)

		require.Eventually(t, func() bool {
			def, err := m.Definition(ctx, "totals")
			if err != nil || def.Reduce != jsOrdersCount {
				return false
			}
			_, err = m.Definition(ctx, pending.Name)
			return err != nil
		}, 10*time.Second, 20*time.Millisecond)

		waitForNonStale(t, ctx, m, "totals")
		assert.EqualValues(t, 2, managerResults(t, ctx, m, "totals")["A"]["Amount"])

		// the output collection follows the new index after the swap
		id := OutputDocumentID(mustKey(t, ctx, m, "totals", "A"))
		require.Eventually(t, func() bool {
			doc, err := db.GetDocument(ctx, "Totals", id)
			return err == nil && fmt.Sprint(doc.Data["Amount"]) == "2"
		}, 10*time.Second, 20*time.Millisecond)

		// the replaced index keeps indexing
		putOrder(t, db, "o3", "A", 5)
		waitForNonStale(t, ctx, m, "totals")
		assert.EqualValues(t, 3, managerResults(t, ctx, m, "totals")["A"]["Amount"])
	})
}

func TestManager_References(t *testing.T) {
	WithTestManager(t, func(ctx context.Context, m *Manager, db *storage.Database) {
		def := &model.IndexDefinition{
			Name: "by-country",
			Maps: []model.MapFunction{{
				Collection: "Orders",
				Source: `function(doc) {
					var c = load("Customers", doc.Customer)
					return { Region: c ? c.Country : "unknown", Amount: doc.Amount }
				}`,
			}},
			References: map[string][]string{"Orders": {"Customers"}},
			Reduce:     jsOrdersReduce,
		}
		_, err := m.PutDefinition(ctx, def)
		require.NoError(t, err)

		refs, err := m.ReferencedCollections(ctx, "by-country")
		require.NoError(t, err)
		assert.Equal(t, []string{"Customers"}, refs)

		putCustomer := func(id, country string) {
			_, err := db.PutDocument(ctx, &model.Document{
				ID: id, Collection: "Customers",
				Data: map[string]interface{}{"Country": country},
			})
			require.NoError(t, err)
		}
		putCustomer("c1", "DE")
		for i, amount := range []int{10, 20} {
			_, err := db.PutDocument(ctx, &model.Document{
				ID: fmt.Sprintf("o%d", i), Collection: "Orders",
				Data: map[string]interface{}{"Customer": "c1", "Amount": amount},
			})
			require.NoError(t, err)
		}
		waitForNonStale(t, ctx, m, "by-country")
		assert.EqualValues(t, 30, managerResults(t, ctx, m, "by-country")["DE"]["Amount"])

		// a change of the customer remaps its orders
		putCustomer("c1", "FR")
		waitForNonStale(t, ctx, m, "by-country")
		res := managerResults(t, ctx, m, "by-country")
		assert.Len(t, res, 1)
		assert.EqualValues(t, 30, res["FR"]["Amount"])

		_, err = db.DeleteDocument(ctx, "Customers", "c1")
		require.NoError(t, err)
		waitForNonStale(t, ctx, m, "by-country")
		assert.EqualValues(t, 30, managerResults(t, ctx, m, "by-country")["unknown"]["Amount"])
	})
}

func TestManager_Languages(t *testing.T) {
	tests := []struct {
		name string
		def  *model.IndexDefinition
	}{
		{
			name: "builtin reducer",
			def: &model.IndexDefinition{
				Name:    "builtin",
				Maps:    []model.MapFunction{{Collection: "Orders", Source: jsOrdersMap}},
				Reduce:  "_sum:Amount",
				GroupBy: []model.GroupByField{{Name: "Region"}},
			},
		},
		{
			name: "tengo",
			def: &model.IndexDefinition{
				Name:     "tengo",
				Language: model.LanguageTengo,
				Maps: []model.MapFunction{{
					Collection: "Orders",
					Source:     `func(doc) { return {Region: doc.Region, Amount: doc.Amount} }`,
				}},
				Reduce: `groupBy(func(x) { return x.Region }).aggregate(func(g) {
					sum := 0
					for v in g.values {
						sum += v.Amount
					}
					return {Region: g.key, Amount: sum}
				})`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			WithTestManager(t, func(ctx context.Context, m *Manager, db *storage.Database) {
				_, err := m.PutDefinition(ctx, tt.def)
				require.NoError(t, err)

				putOrder(t, db, "o1", "A", 10)
				putOrder(t, db, "o2", "A", 20)
				putOrder(t, db, "o3", "B", 5)
				waitForNonStale(t, ctx, m, tt.def.Name)

				res := managerResults(t, ctx, m, tt.def.Name)
				require.Len(t, res, 2)
				assert.EqualValues(t, 30, res["A"]["Amount"])
				assert.EqualValues(t, 5, res["B"]["Amount"])
			})
		})
	}
}

func TestManager_Errors(t *testing.T) {
	WithTestManager(t, func(ctx context.Context, m *Manager, db *storage.Database) {
		_, err := m.PutDefinition(ctx, jsDefinition("totals", ""))
		require.NoError(t, err)

		putOrder(t, db, "o1", "A", 10)
		_, err = db.PutDocument(ctx, &model.Document{
			ID: "o2", Collection: "Orders",
			Data: map[string]interface{}{"Fail": true},
		})
		require.NoError(t, err)
		waitForNonStale(t, ctx, m, "totals")

		errs, err := m.Errors(ctx, "totals")
		require.NoError(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, model.ActionMap, errs[0].Action)
		assert.Equal(t, "Orders/o2", errs[0].Document)
		assert.Contains(t, errs[0].Message, "bad order")

		require.NoError(t, m.ClearErrors(ctx, "totals"))
		errs, err = m.Errors(ctx, "totals")
		require.NoError(t, err)
		assert.Empty(t, errs)

		_, err = m.Errors(ctx, "unknown")
		assert.ErrorIs(t, err, model.ErrIndexNotFound)
	})
}

func TestManager_DeleteDefinition(t *testing.T) {
	WithTestManager(t, func(ctx context.Context, m *Manager, db *storage.Database) {
		_, err := m.PutDefinition(ctx, jsDefinition("totals", "Totals"))
		require.NoError(t, err)
		putOrder(t, db, "o1", "A", 10)
		waitForNonStale(t, ctx, m, "totals")

		require.NoError(t, m.DeleteDefinition(ctx, "totals"))
		_, err = m.Definition(ctx, "totals")
		assert.ErrorIs(t, err, model.ErrIndexNotFound)
		assert.ErrorIs(t, m.DeleteDefinition(ctx, "totals"), model.ErrIndexNotFound)

		stale, _, err := m.IsStale(ctx, "totals")
		assert.True(t, stale)
		assert.ErrorIs(t, err, model.ErrIndexNotFound)

		// the output collection can be consumed once the index is gone
		back := jsDefinition("back", "Orders")
		back.Maps[0].Collection = "Totals"
		_, err = m.PutDefinition(ctx, back)
		assert.NoError(t, err)
	})
}
