package printersink

import "os"

// Header is the printdata overload set: vector/deque/string_view/mutex/
// unordered_map specializations plus a SFINAE-guarded generic fallback,
// ported from original_source/printerOverloads.cpp's
// writeHeaderPrintOverloads(). Every printer library and every
// #return-wrapped fragment needs this declared before it can compile.
const Header = `#pragma once
#include <deque>
#include <iostream>
#include <mutex>
#include <ostream>
#include <string_view>
#include <type_traits>
#include <unordered_map>
#include <vector>

template <class T>
inline void printdata(const std::vector<T> &vect, std::string_view name,
                      std::string_view type) {
    std::cout << " >> " << type << (name.empty() ? "" : " ")
              << (name.empty() ? "" : name) << ": ";
    for (const auto &v : vect) {
        std::cout << v << ' ';
    }

    std::cout << std::endl;
}

template <class T>
inline void printdata(const std::deque<T> &vect, std::string_view name,
                      std::string_view type) {
    std::cout << " >> " << type << (name.empty() ? "" : " ")
              << (name.empty() ? "" : name) << ": ";
    for (const auto &v : vect) {
        std::cout << v << ' ';
    }

    std::cout << std::endl;
}

inline void printdata(std::string_view str, std::string_view name,
                      std::string_view type) {
    std::cout << " >> " << type << (name.empty() ? "" : " ")
              << (name.empty() ? "" : name) << ": " << str << std::endl;
}

inline void printdata(const std::mutex &mtx, std::string_view name,
                      std::string_view type) {
    std::cout << " >> " << (name.empty() ? "" : " ")
              << (name.empty() ? "" : name) << "Mutex" << std::endl;
}

template <class T, class = void> struct is_printable : std::false_type {};

template <class T>
struct is_printable<
    T, std::void_t<decltype(std::cout << std::declval<const T &>())>>
    : std::true_type {};

template <class K, class V>
inline void printdata(const std::unordered_map<K, V> &map,
                      std::string_view name, std::string_view type) {
    if constexpr (is_printable<K>::value && is_printable<V>::value) {
        std::cout << " >> " << type << (name.empty() ? "" : " ")
                  << (name.empty() ? "" : name) << ": ";
        for (const auto &m : map) {
            std::cout << m.first << " : " << m.second << ' ';
        }
        std::cout << std::endl;
    } else if constexpr (is_printable<K>::value) {
        std::cout << " >> " << type << (name.empty() ? "" : " ")
                  << (name.empty() ? "" : name) << ": ";
        for (const auto &m : map) {
            std::cout << m.first << " : "
                      << "Not printable" << ' ';
        }
        std::cout << std::endl;
    } else if constexpr (is_printable<V>::value) {
        std::cout << " >> " << type << (name.empty() ? "" : " ")
                  << (name.empty() ? "" : name) << ": ";
        for (const auto &m : map) {
            std::cout << "Not printable"
                      << " : " << m.second << ' ';
        }
        std::cout << std::endl;
    } else {
        std::cout << " >> " << type << (name.empty() ? "" : " ")
                  << (name.empty() ? "" : name) << ": "
                  << "Not printable with " << map.size() << " elements"
                  << std::endl;
    }
}

template <class T>
inline void printdata(const T &val, std::string_view name,
                      std::string_view type) {
    if constexpr (is_printable<T>::value) {
        std::cout << " >> " << type << (name.empty() ? "" : " ")
                  << (name.empty() ? "" : name) << ": " << val << std::endl;
    } else {
        std::cout << " >> " << type << (name.empty() ? "" : " ")
                  << (name.empty() ? "" : name) << ": "
                  << "Not printable" << std::endl;
    }
}
`

// WriteHeader writes the printdata overload set to path, truncating any
// existing file. Idempotent and side-effect-free beyond the write, so
// callers may call it once per session without tracking whether a
// prior call already ran.
func WriteHeader(path string) error {
	return os.WriteFile(path, []byte(Header), 0o644)
}
