// Утилита просмотра файлов снапшотов камер: печатает количество записей,
// распределение состояний блоков и статистику структурированных данных.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/annelo/go-chamber-server/internal/snapshot"
)

var (
	topN    = flag.Int("top", 10, "Сколько самых частых состояний показать")
	payload = flag.Bool("payload", false, "Печатать блоки со структурированными данными")
)

func main() {
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Использование: snapinfo [флаги] <файл.snap>\n")
		flag.PrintDefaults()
		os.Exit(2)
	}

	path := flag.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Ошибка чтения файла: %v", err)
	}

	snap, err := snapshot.Decode(data)
	if err != nil {
		log.Fatalf("Ошибка декодирования снапшота: %v", err)
	}

	fmt.Printf("Файл:    %s (%d байт сжато)\n", path, len(data))
	fmt.Printf("Записей: %d\n", len(snap.Records))

	counts := make(map[string]int)
	withPayload := 0
	payloadKeys := 0
	for _, rec := range snap.Records {
		counts[rec.State]++
		if len(rec.Payload) > 0 {
			withPayload++
			payloadKeys += len(rec.Payload)
		}
	}
	fmt.Printf("Различных состояний: %d\n", len(counts))
	fmt.Printf("Блоков с данными:    %d (ключей всего: %d)\n", withPayload, payloadKeys)

	type stateCount struct {
		state string
		n     int
	}
	ordered := make([]stateCount, 0, len(counts))
	for s, n := range counts {
		ordered = append(ordered, stateCount{s, n})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].n != ordered[j].n {
			return ordered[i].n > ordered[j].n
		}
		return ordered[i].state < ordered[j].state
	})

	limit := *topN
	if limit > len(ordered) {
		limit = len(ordered)
	}
	fmt.Printf("\nЧастые состояния:\n")
	for _, sc := range ordered[:limit] {
		fmt.Printf("  %8d  %s\n", sc.n, sc.state)
	}

	if *payload {
		fmt.Printf("\nБлоки со структурированными данными:\n")
		for i, rec := range snap.Records {
			if len(rec.Payload) == 0 {
				continue
			}
			fmt.Printf("  #%d %s\n", i, rec.State)
			keys := make([]string, 0, len(rec.Payload))
			for k := range rec.Payload {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("      %s = %s\n", k, rec.Payload[k])
			}
		}
	}
}
