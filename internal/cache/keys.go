package cache

import "fmt"

// Key layout, one namespace per cached concern:
//
//	scope:{id}:config        -> scope config snapshot
//	scope:{id}:recent        -> scope recent-activity window (list)
//	actor:{id}:scope:{id}    -> actor recent-activity window (list)
//	actor:{id}:global        -> actor cross-scope activity window (list)
//	actor:{id}:scope:{id}:reputation -> reputation snapshot
//	actor:{id}:embeddings            -> recent message embeddings (list)
//	lock:actor:{id}:scope:{id}       -> decision lease
func keyScopeConfig(scopeID uint64) string {
	return fmt.Sprintf("scope:%d:config", scopeID)
}

func keyScopeWindow(scopeID uint64) string {
	return fmt.Sprintf("scope:%d:recent", scopeID)
}

func keyActorWindow(actorID, scopeID uint64) string {
	return fmt.Sprintf("actor:%d:scope:%d", actorID, scopeID)
}

func keyGlobalWindow(actorID uint64) string {
	return fmt.Sprintf("actor:%d:global", actorID)
}

func keyReputation(actorID, scopeID uint64) string {
	return fmt.Sprintf("actor:%d:scope:%d:reputation", actorID, scopeID)
}

func keyActorEmbeddings(actorID uint64) string {
	return fmt.Sprintf("actor:%d:embeddings", actorID)
}

func keyActorLock(actorID, scopeID uint64) string {
	return fmt.Sprintf("lock:actor:%d:scope:%d", actorID, scopeID)
}
