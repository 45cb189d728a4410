package pool

import (
	"context"
	"os"

	tvchart "github.com/anjanpoonacha/tvchart"
	"github.com/schollz/progressbar/v3"
)

// WarmSymbols pre-fetches every symbol in symbols through the pool, one
// FetchSymbol call each, printing progress to stderr. A failing symbol
// does not stop the rest of the warm-up; the returned map holds the
// error of every symbol that failed, keyed by symbol (empty when all
// succeeded).
func (p *Pool) WarmSymbols(ctx context.Context, symbols []string, resolution string, barsCount int) map[string]error {
	bar := progressbar.NewOptions(len(symbols),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("warming symbols"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	errsBySymbol := make(map[string]error, len(symbols))
	for _, symbol := range symbols {
		_, err := p.FetchSymbol(ctx, tvchart.FetchSymbolRequest{
			Symbol:     symbol,
			Resolution: resolution,
			BarsCount:  barsCount,
		})
		if err != nil {
			errsBySymbol[symbol] = err
		}
		_ = bar.Add(1)
	}
	return errsBySymbol
}
