package store

import "fmt"

// Key builders. Everything for one table hangs off bj:table:<tid> so a
// table can be inspected or wiped with a single prefix scan.

func keyTableMeta(tid string) string    { return fmt.Sprintf("bj:table:%s:meta", tid) }
func keyTablePlayers(tid string) string { return fmt.Sprintf("bj:table:%s:players", tid) }
func keyTableSeats(tid string) string   { return fmt.Sprintf("bj:table:%s:seats", tid) }
func keyTableReady(tid string) string   { return fmt.Sprintf("bj:table:%s:ready", tid) }

func keyTablePlayer(tid, pid string) string { return fmt.Sprintf("bj:table:%s:player:%s", tid, pid) }
func keyTableHand(tid, handID string) string {
	return fmt.Sprintf("bj:table:%s:hand:%s", tid, handID)
}

func keyTableShoe(tid string) string     { return fmt.Sprintf("bj:table:%s:shoe", tid) }
func keyTableShoeMeta(tid string) string { return fmt.Sprintf("bj:table:%s:shoe:meta", tid) }

func keyTableVote(tid string, roundID int) string {
	return fmt.Sprintf("bj:table:%s:vote:%d", tid, roundID)
}

func keyTableEvents(tid string) string { return fmt.Sprintf("bj:table:%s:events", tid) }

func keyTableRequest(tid, requestID string) string {
	return fmt.Sprintf("bj:table:%s:req:%s", tid, requestID)
}

func keyReconnectToken(token string) string { return fmt.Sprintf("bj:reconnect:%s", token) }

func keyTablesSet() string { return "bj:tables" }

func keyTableLock(tid string) string { return fmt.Sprintf("bj:lock:%s", tid) }
