package utils

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"bitbucket.org/prefsaude/compras_backend/config"
)

func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

func GetTypeName[T any]() string {
	var v T
	return reflect.TypeOf(v).Name()
}

// StoreRedisList caches the list of T scoped to a parent id
// (e.g. the registered items of one price registration).
func StoreRedisList[T any](obj any, parentId int) error {
	key := GetTypeName[T]() + "s:parent:" + fmt.Sprint(parentId)
	return config.SetRedisObject(key, &obj, GetCacheLifespan())
}

func FetchRedisList[T any](dest any, parentId int) (bool, error) {
	key := GetTypeName[T]() + "s:parent:" + fmt.Sprint(parentId)
	return config.GetRedisObject(key, dest)
}

func ClearRedisList[T any](parentId int) error {
	key := GetTypeName[T]() + "s:parent:" + fmt.Sprint(parentId)
	return config.RemoveRedisKey(key)
}
